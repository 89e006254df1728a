// Package jobs persists upload-automation job definitions and derives
// their WebJob schedules.
package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agoraworks/agora/pkg/store"
)

// Schedule types.
const (
	ScheduleManual    = "manual"
	ScheduleScheduled = "scheduled"
)

// Schedule periods.
const (
	PeriodHourly  = "hourly"
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// Job statuses.
const (
	StatusIdle    = "idle"
	StatusRunning = "running"
	StatusFailed  = "failed"
)

// Job is one upload-automation definition for an agent.
type Job struct {
	ID             string    `json:"id"`
	AgentID        string    `json:"agent_id"`
	Name           string    `json:"name,omitempty"`
	ScheduleType   string    `json:"schedule_type"`
	SchedulePeriod string    `json:"schedule_period,omitempty"`
	Hour           int       `json:"hour,omitempty"`
	Minute         int       `json:"minute,omitempty"`
	Weekday        int       `json:"weekday,omitempty"`
	Day            int       `json:"day,omitempty"`
	DataContainer  string    `json:"data_container,omitempty"`
	DataFiles      []string  `json:"data_files,omitempty"`
	Status         string    `json:"status,omitempty"`
	LastRun        time.Time `json:"last_run,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
	CreatedAt      time.Time `json:"created_at,omitempty"`
	UpdatedAt      time.Time `json:"updated_at,omitempty"`
}

// Scheduled reports whether the job runs on a timer.
func (j *Job) Scheduled() bool {
	return j.ScheduleType == ScheduleScheduled
}

// CronExpression derives the six-field WebJobs cron expression for a
// scheduled job.
func (j *Job) CronExpression() (string, error) {
	if !j.Scheduled() {
		return "", fmt.Errorf("job %s is not scheduled", j.ID)
	}
	switch j.SchedulePeriod {
	case PeriodHourly:
		return fmt.Sprintf("0 %d * * * *", j.Minute), nil
	case PeriodDaily:
		return fmt.Sprintf("0 %d %d * * *", j.Minute, j.Hour), nil
	case PeriodWeekly:
		return fmt.Sprintf("0 %d %d * * %d", j.Minute, j.Hour, j.Weekday), nil
	case PeriodMonthly:
		return fmt.Sprintf("0 %d %d %d * *", j.Minute, j.Hour, j.Day), nil
	default:
		return "", fmt.Errorf("unknown schedule period %q", j.SchedulePeriod)
	}
}

// Validate checks the fields persistence and packaging rely on.
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("%w: job id is required", store.ErrInvalidData)
	}
	if j.AgentID == "" {
		return fmt.Errorf("%w: agent id is required", store.ErrInvalidData)
	}
	switch j.ScheduleType {
	case ScheduleManual:
	case ScheduleScheduled:
		if _, err := j.CronExpression(); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidData, err)
		}
	default:
		return fmt.Errorf("%w: unknown schedule type %q", store.ErrInvalidData, j.ScheduleType)
	}
	return nil
}

func decodeJob(data []byte) (*Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidData, err)
	}
	if j.ID == "" {
		return nil, fmt.Errorf("%w: job record has no id", store.ErrInvalidData)
	}
	if j.Status == "" {
		j.Status = StatusIdle
	}
	return &j, nil
}

func encodeJob(j *Job) ([]byte, error) {
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding job %s: %w", j.ID, err)
	}
	return data, nil
}
