package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bolsa-empleo/portal/jobs"
	_ "github.com/bolsa-empleo/portal/testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRoutesCommandPrintsDefaultTable(t *testing.T) {
	t.Setenv("ROUTE_RULES_FILE", "")
	out, err := runCommand(t, "routes")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "/profile")
	assert.Contains(t, lines[2], "/empleos-busqueda")
	assert.Contains(t, lines[3], "/admin")
	assert.Contains(t, lines[3], "Administrador Empresa")
}

func TestRoutesCommandReadsRuleFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yml")
	require.NoError(t, os.WriteFile(path, []byte("rules: []\n"), 0o600))
	out, err := runCommand(t, "routes", "--rules", path)
	require.NoError(t, err)
	assert.Contains(t, out, "every path allowed")

	_, err = runCommand(t, "routes", "--rules", filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestServeSkipsStartupInTestMode(t *testing.T) {
	_, err := runCommand(t, "serve")
	assert.NoError(t, err)
}

type stubQueue struct {
	info  *asynq.QueueInfo
	tasks []*asynq.TaskInfo
	err   error
}

func (s stubQueue) GetQueueInfo(string) (*asynq.QueueInfo, error) { return s.info, s.err }

func (s stubQueue) ListRetryTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.tasks, s.err
}

func (s stubQueue) Close() error { return nil }

func TestInspectQueue(t *testing.T) {
	cli := &JobsCLI{inspector: stubQueue{info: &asynq.QueueInfo{Pending: 2, Retry: 1}}}
	stats, err := cli.InspectQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, QueueStats{Queue: jobs.QueueDefault, Pending: 2, Retry: 1}, stats)

	_, err = (&JobsCLI{inspector: stubQueue{err: errors.New("dial")}}).InspectQueue(context.Background())
	assert.Error(t, err)

	var missing *JobsCLI
	_, err = missing.InspectQueue(context.Background())
	assert.Error(t, err)
}

func TestListLogoutRetriesHidesTokens(t *testing.T) {
	payload, err := json.Marshal(jobs.LogoutRetryPayload{SubjectID: "42", AccessToken: "secret-token"})
	require.NoError(t, err)
	cli := &JobsCLI{inspector: stubQueue{tasks: []*asynq.TaskInfo{
		{ID: "t1", Type: jobs.TaskAuthLogoutRetry, Payload: payload, Retried: 2, LastErr: "backend: unavailable"},
		{ID: "t2", Type: "other:task", Payload: []byte(`{}`)},
	}}}

	pending, err := cli.ListLogoutRetries(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, PendingLogout{TaskID: "t1", SubjectID: "42", Retried: 2, LastError: "backend: unavailable"}, pending[0])

	out := new(bytes.Buffer)
	require.NoError(t, writeJSON(out, pending))
	assert.NotContains(t, out.String(), "secret-token")
}
