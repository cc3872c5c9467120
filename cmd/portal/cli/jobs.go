package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/bolsa-empleo/portal/jobs"
)

// queueReader is the part of asynq.Inspector the jobs commands use.
type queueReader interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
	ListRetryTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	Close() error
}

// JobsCLI wraps manual inspection helpers for Asynq jobs.
type JobsCLI struct {
	inspector queueReader
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) *JobsCLI {
	return &JobsCLI{inspector: asynq.NewInspector(asynq.RedisClientOpt{Addr: redisAddr})}
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	if c == nil || c.inspector == nil {
		return nil
	}
	return c.inspector.Close()
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
}

// InspectQueue reports the queue metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Archived = info.Archived
	}
	return stats, nil
}

// PendingLogout is a logout retry waiting for its next attempt. The token is
// never printed.
type PendingLogout struct {
	TaskID    string `json:"task_id"`
	SubjectID string `json:"subject_id"`
	Retried   int    `json:"retried"`
	LastError string `json:"last_error,omitempty"`
}

// ListLogoutRetries returns logout retries that have failed at least once.
func (c *JobsCLI) ListLogoutRetries(ctx context.Context, size int) ([]PendingLogout, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 20
	}
	tasks, err := c.inspector.ListRetryTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
	if err != nil {
		return nil, err
	}
	out := make([]PendingLogout, 0, len(tasks))
	for _, task := range tasks {
		if task.Type != jobs.TaskAuthLogoutRetry {
			continue
		}
		var payload jobs.LogoutRetryPayload
		if err := json.Unmarshal(task.Payload, &payload); err != nil {
			continue
		}
		out = append(out, PendingLogout{
			TaskID:    task.ID,
			SubjectID: payload.SubjectID,
			Retried:   task.Retried,
			LastError: task.LastErr,
		})
	}
	return out, nil
}

func newJobsCommand() *cobra.Command {
	var redisAddr string
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect the background job queue",
	}
	cmd.PersistentFlags().StringVar(&redisAddr, "redis", "", "Redis address, defaults to REDIS_ADDR")

	open := func() *JobsCLI {
		if redisAddr == "" {
			redisAddr = os.Getenv("REDIS_ADDR")
		}
		if redisAddr == "" {
			redisAddr = "127.0.0.1:6379"
		}
		return NewJobsCLI(redisAddr)
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Print queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := open()
			defer cli.Close()
			stats, err := cli.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), stats)
		},
	})

	var size int
	retries := &cobra.Command{
		Use:   "logout-retries",
		Short: "List failed logout retries awaiting another attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli := open()
			defer cli.Close()
			pending, err := cli.ListLogoutRetries(cmd.Context(), size)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), pending)
		},
	}
	retries.Flags().IntVar(&size, "size", 20, "page size")
	cmd.AddCommand(retries)
	return cmd
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
