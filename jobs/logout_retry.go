package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/bolsa-empleo/portal/internal/backend"
	jobmetrics "github.com/bolsa-empleo/portal/internal/jobs"
)

// RemoteLogout invalidates a backend session.
type RemoteLogout interface {
	Logout(ctx context.Context, accessToken string) error
}

// LogoutRetryJob replays backend logouts that failed while the user was
// signing out. The local session is already gone by the time it runs.
type LogoutRetryJob struct {
	Backend RemoteLogout
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewLogoutRetryJob constructs the job handler.
func NewLogoutRetryJob(remote RemoteLogout, logger *slog.Logger, metrics *jobmetrics.Metrics) *LogoutRetryJob {
	return &LogoutRetryJob{Backend: remote, Logger: logger, Metrics: metrics}
}

// Handle executes one logout attempt.
func (j *LogoutRetryJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Backend == nil {
		return errors.New("logout retry: backend not configured")
	}
	var payload LogoutRetryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.AccessToken == "" {
		j.log().Warn("discard logout retry task", slog.Any("error", err))
		return fmt.Errorf("logout retry: bad payload: %w", asynq.SkipRetry)
	}

	tracker := j.Metrics.Track(TaskAuthLogoutRetry)
	err := j.Backend.Logout(ctx, payload.AccessToken)
	switch {
	case err == nil:
		j.log().Info("remote logout retried", slog.String("subject", payload.SubjectID))
	case errors.Is(err, backend.ErrInvalidCredentials):
		// Token already dead on the backend.
		j.log().Info("remote logout token no longer valid", slog.String("subject", payload.SubjectID))
		err = nil
	default:
		j.log().Warn("remote logout retry failed", slog.String("subject", payload.SubjectID), slog.Any("error", err))
	}
	return tracker.End(err)
}

func (j *LogoutRetryJob) log() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
