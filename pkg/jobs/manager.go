package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/agoraworks/agora/pkg/store"
	"github.com/agoraworks/agora/pkg/webjob"
)

// Manager persists job definitions and renders their WebJob packages.
type Manager struct {
	jobs      store.Store
	generator *webjob.Generator
	logger    *slog.Logger
}

// NewManager builds a job manager over the given collection.
func NewManager(jobs store.Store, generator *webjob.Generator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{jobs: jobs, generator: generator, logger: logger}
}

func jobKey(id string) string { return id + ".json" }

// Get returns one job by id.
func (m *Manager) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: job id is required", store.ErrInvalidData)
	}
	rec, err := m.jobs.Get(ctx, jobKey(id))
	if err != nil {
		return nil, fmt.Errorf("fetching job %s: %w", id, err)
	}
	return decodeJob(rec.Data)
}

// List returns all jobs, skipping malformed records.
func (m *Manager) List(ctx context.Context) ([]*Job, error) {
	entries, err := m.jobs.List(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	out := make([]*Job, 0, len(entries))
	for _, e := range entries {
		rec, err := m.jobs.Get(ctx, e.Key)
		if err != nil {
			m.logger.Warn("skipping unreadable job record", "key", e.Key, "error", err)
			continue
		}
		j, err := decodeJob(rec.Data)
		if err != nil {
			m.logger.Warn("skipping malformed job record", "key", e.Key, "error", err)
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// ListForAgent returns the jobs belonging to one agent.
func (m *Manager) ListForAgent(ctx context.Context, agentID string) ([]*Job, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Job, 0, len(all))
	for _, j := range all {
		if j.AgentID == agentID {
			out = append(out, j)
		}
	}
	return out, nil
}

// Create persists a new job. Existing ids are rejected.
func (m *Manager) Create(ctx context.Context, j *Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	j.CreatedAt = now
	j.UpdatedAt = now
	if j.Status == "" {
		j.Status = StatusIdle
	}
	data, err := encodeJob(j)
	if err != nil {
		return err
	}
	if _, err := m.jobs.Put(ctx, jobKey(j.ID), data, &store.PutOptions{IfNoneMatchAny: true}); err != nil {
		return fmt.Errorf("creating job %s: %w", j.ID, err)
	}
	return nil
}

// Update overwrites a job, preserving its creation time.
func (m *Manager) Update(ctx context.Context, j *Job) error {
	if err := j.Validate(); err != nil {
		return err
	}
	existing, err := m.Get(ctx, j.ID)
	if err != nil {
		return err
	}
	j.CreatedAt = existing.CreatedAt
	j.UpdatedAt = time.Now().UTC()
	data, err := encodeJob(j)
	if err != nil {
		return err
	}
	if _, err := m.jobs.Put(ctx, jobKey(j.ID), data, nil); err != nil {
		return fmt.Errorf("updating job %s: %w", j.ID, err)
	}
	return nil
}

// Delete removes a job definition.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: job id is required", store.ErrInvalidData)
	}
	if err := m.jobs.Delete(ctx, jobKey(id)); err != nil {
		return fmt.Errorf("deleting job %s: %w", id, err)
	}
	return nil
}

// RecordRun stores the outcome of a job execution.
func (m *Manager) RecordRun(ctx context.Context, id string, runErr error) error {
	j, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	j.LastRun = time.Now().UTC()
	if runErr != nil {
		j.Status = StatusFailed
		j.LastError = runErr.Error()
	} else {
		j.Status = StatusIdle
		j.LastError = ""
	}
	return m.Update(ctx, j)
}

// Package renders the WebJob ZIP for a job.
func (m *Manager) Package(ctx context.Context, id, containerName, indexName string) ([]byte, error) {
	if m.generator == nil {
		return nil, fmt.Errorf("webjob generator is not configured")
	}
	j, err := m.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cfg := webjob.Config{
		JobName:       packageName(j),
		AgentID:       j.AgentID,
		ContainerName: containerName,
		IndexName:     indexName,
		Scheduled:     j.Scheduled(),
	}
	if j.DataContainer != "" {
		cfg.ContainerName = j.DataContainer
	}
	if j.Scheduled() {
		cron, err := j.CronExpression()
		if err != nil {
			return nil, err
		}
		cfg.Schedule = cron
	}
	return m.generator.Package(cfg)
}

func packageName(j *Job) string {
	if j.Name != "" {
		return strings.ReplaceAll(strings.ToLower(j.Name), " ", "-")
	}
	return j.AgentID + "-" + j.ID
}
