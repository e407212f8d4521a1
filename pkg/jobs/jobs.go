// Package jobs runs video operations in the background and tracks their
// status in a job table.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/vidrag/internal/models"
	"github.com/xhad/vidrag/internal/types"
)

var (
	ErrNotFound   = errors.New("job not found")
	ErrQueueFull  = errors.New("job queue is full")
	ErrClosed     = errors.New("job queue is closed")
	ErrInvalidJob = errors.New("job needs a video id and a kind")
)

// Runner performs the work behind a job and returns its result text.
type Runner func(ctx context.Context, videoID, kind string) (string, error)

// Task is the unit handed to a Dispatcher. It is also the AMQP message body.
type Task struct {
	JobID   string `json:"job_id"`
	VideoID string `json:"video_id"`
	Kind    string `json:"kind"`
}

// Dispatcher delivers a task to whatever eventually calls Manager.Execute.
type Dispatcher interface {
	Dispatch(ctx context.Context, task Task) error
}

type ManagerConfig struct {
	Store  types.JobStore
	Run    Runner
	Logger *slog.Logger
	// ErrorMessage renders a runner failure for the job record. Defaults to err.Error().
	ErrorMessage func(error) string
}

type Manager struct {
	store      types.JobStore
	run        Runner
	logger     *slog.Logger
	message    func(error) string
	dispatcher Dispatcher
}

func NewManager(config ManagerConfig) (*Manager, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("job store is required")
	}
	if config.Run == nil {
		return nil, fmt.Errorf("job runner is required")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ErrorMessage == nil {
		config.ErrorMessage = func(err error) string { return err.Error() }
	}

	return &Manager{
		store:   config.Store,
		run:     config.Run,
		logger:  config.Logger,
		message: config.ErrorMessage,
	}, nil
}

// Attach sets where submitted tasks are sent. It must be called before Submit.
func (m *Manager) Attach(d Dispatcher) {
	m.dispatcher = d
}

// Submit records a queued job and dispatches it. If dispatch fails the job is
// marked failed and the dispatch error is returned.
func (m *Manager) Submit(ctx context.Context, videoID, kind string) (string, error) {
	videoID = strings.TrimSpace(videoID)
	kind = strings.TrimSpace(kind)
	if videoID == "" || kind == "" {
		return "", ErrInvalidJob
	}
	if m.dispatcher == nil {
		return "", fmt.Errorf("no dispatcher attached")
	}

	now := time.Now().UTC()
	job := models.Job{
		ID:        uuid.NewString(),
		VideoID:   videoID,
		Kind:      kind,
		Status:    models.JobQueued,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Put(ctx, job); err != nil {
		return "", fmt.Errorf("failed to store job: %w", err)
	}

	task := Task{JobID: job.ID, VideoID: videoID, Kind: kind}
	if err := m.dispatcher.Dispatch(ctx, task); err != nil {
		m.transition(ctx, &job, models.JobFailed, "", err.Error())
		return "", fmt.Errorf("failed to dispatch job: %w", err)
	}

	m.logger.InfoContext(ctx, "job submitted", "job_id", job.ID, "video_id", videoID, "kind", kind)
	return job.ID, nil
}

func (m *Manager) Get(ctx context.Context, id string) (models.Job, error) {
	return m.store.Get(ctx, id)
}

// Execute runs one task to completion, moving its job through processing to
// completed or failed. Pool workers and the AMQP consumer call it.
func (m *Manager) Execute(ctx context.Context, task Task) {
	job, err := m.store.Get(ctx, task.JobID)
	if err != nil {
		m.logger.WarnContext(ctx, "job vanished before it ran", "job_id", task.JobID, "error", err)
		return
	}
	if job.Status.Terminal() {
		return
	}

	m.transition(ctx, &job, models.JobProcessing, "", "")

	start := time.Now()
	result, err := m.run(ctx, task.VideoID, task.Kind)
	if err != nil {
		m.logger.WarnContext(ctx, "job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
		m.transition(ctx, &job, models.JobFailed, "", m.message(err))
		return
	}

	m.transition(ctx, &job, models.JobCompleted, result, "")
	m.logger.InfoContext(ctx, "job completed", "job_id", job.ID, "kind", job.Kind, "duration", time.Since(start))
}

func (m *Manager) transition(ctx context.Context, job *models.Job, status models.JobStatus, result, errMsg string) {
	job.Status = status
	job.Result = result
	job.Error = errMsg
	job.Version++
	job.UpdatedAt = time.Now().UTC()

	// The job record outlives a cancelled request.
	if err := m.store.Put(context.WithoutCancel(ctx), *job); err != nil {
		m.logger.WarnContext(ctx, "failed to update job", "job_id", job.ID, "status", status, "error", err)
	}
}
