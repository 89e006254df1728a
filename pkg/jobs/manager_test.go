package jobs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agoraworks/agora/pkg/store"
	"github.com/agoraworks/agora/pkg/webjob"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	provider := store.NewMemoryProvider()
	col, err := provider.Collection(context.Background(), "job-configs")
	require.NoError(t, err)
	gen, err := webjob.NewGenerator()
	require.NoError(t, err)
	return NewManager(col, gen, nil)
}

func scheduledJob() *Job {
	return &Job{
		ID:             "j1",
		AgentID:        "scm",
		Name:           "Gece Yüklemesi",
		ScheduleType:   ScheduleScheduled,
		SchedulePeriod: PeriodDaily,
		Hour:           3,
		Minute:         30,
		DataContainer:  "scm-incoming",
	}
}

func TestCronExpression(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		want string
	}{
		{"hourly", Job{ID: "j", ScheduleType: ScheduleScheduled, SchedulePeriod: PeriodHourly, Minute: 15}, "0 15 * * * *"},
		{"daily", Job{ID: "j", ScheduleType: ScheduleScheduled, SchedulePeriod: PeriodDaily, Hour: 3, Minute: 30}, "0 30 3 * * *"},
		{"weekly", Job{ID: "j", ScheduleType: ScheduleScheduled, SchedulePeriod: PeriodWeekly, Hour: 8, Minute: 0, Weekday: 1}, "0 0 8 * * 1"},
		{"monthly", Job{ID: "j", ScheduleType: ScheduleScheduled, SchedulePeriod: PeriodMonthly, Hour: 6, Minute: 45, Day: 1}, "0 45 6 1 * *"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.job.CronExpression()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	manual := Job{ID: "j", ScheduleType: ScheduleManual}
	_, err := manual.CronExpression()
	assert.Error(t, err)
}

func TestCreateGetDelete(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, scheduledJob()))

	got, err := m.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, "scm", got.AgentID)
	assert.Equal(t, StatusIdle, got.Status)
	assert.False(t, got.CreatedAt.IsZero())

	require.NoError(t, m.Delete(ctx, "j1"))
	_, err = m.Get(ctx, "j1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateDuplicateConflicts(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, scheduledJob()))
	err := m.Create(ctx, scheduledJob())
	assert.ErrorIs(t, err, store.ErrConflict)
}

func TestValidateRejectsBadSchedule(t *testing.T) {
	m := newTestManager(t)
	j := scheduledJob()
	j.SchedulePeriod = "fortnightly"
	err := m.Create(context.Background(), j)
	assert.ErrorIs(t, err, store.ErrInvalidData)

	j = scheduledJob()
	j.ScheduleType = "sometimes"
	err = m.Create(context.Background(), j)
	assert.ErrorIs(t, err, store.ErrInvalidData)
}

func TestListForAgent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, scheduledJob()))

	other := scheduledJob()
	other.ID = "j2"
	other.AgentID = "it"
	require.NoError(t, m.Create(ctx, other))

	jobs, err := m.ListForAgent(ctx, "scm")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "j1", jobs[0].ID)
}

func TestRecordRun(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, scheduledJob()))

	require.NoError(t, m.RecordRun(ctx, "j1", errors.New("upload failed")))
	got, err := m.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, got.Status)
	assert.Equal(t, "upload failed", got.LastError)
	assert.False(t, got.LastRun.IsZero())

	require.NoError(t, m.RecordRun(ctx, "j1", nil))
	got, err = m.Get(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, got.Status)
	assert.Empty(t, got.LastError)
}

func TestPackageScheduledJob(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, scheduledJob()))

	data, err := m.Package(ctx, "j1", "agent-scm", "scm-docs")
	require.NoError(t, err)

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	members := map[string]string{}
	for _, f := range r.File {
		rc, err := f.Open()
		require.NoError(t, err)
		content, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		members[f.Name] = string(content)
	}

	assert.Contains(t, members["settings.job"], "0 30 3 * * *")
	// Job-level data container overrides the agent default.
	assert.Contains(t, members["config.json"], "scm-incoming")
	assert.Contains(t, members["config.json"], "gece-yüklemesi")
}