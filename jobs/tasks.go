package jobs

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskAuthLogoutRetry retries a backend logout that failed during the
	// user's request.
	TaskAuthLogoutRetry = "auth:logout_retry"

	logoutRetryMaxAttempts = 5
	logoutRetryTimeout     = 30 * time.Second
)

// LogoutRetryPayload identifies the backend session to invalidate.
type LogoutRetryPayload struct {
	SubjectID   string `json:"subject_id"`
	AccessToken string `json:"access_token"`
}

// NewLogoutRetryTask constructs an Asynq task for a deferred backend logout.
func NewLogoutRetryTask(payload LogoutRetryPayload) (*asynq.Task, error) {
	if payload.AccessToken == "" {
		return nil, errors.New("jobs: logout retry requires an access token")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuthLogoutRetry, data,
		asynq.Queue(QueueDefault),
		asynq.MaxRetry(logoutRetryMaxAttempts),
		asynq.Timeout(logoutRetryTimeout),
	), nil
}
