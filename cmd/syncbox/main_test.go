package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/velmie/syncbox/httpremote"
	"github.com/velmie/syncbox/internal/config"
	"github.com/velmie/syncbox/internal/zaplog"
	"github.com/velmie/syncbox/remote"
)

type testEnv struct {
	dir string
	env map[string]string
	ref *remote.Reference
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	ref := remote.NewReference()
	srv := httptest.NewServer(httpremote.NewHandler(ref))
	t.Cleanup(srv.Close)

	return &testEnv{
		dir: dir,
		ref: ref,
		env: map[string]string{
			"SYNCBOX_DSN":            filepath.Join(dir, "data", "outbox.db"),
			"SYNCBOX_DEVICE_ID_FILE": filepath.Join(dir, "device-id"),
			"SYNCBOX_REMOTE_URL":     srv.URL + httpremote.ApplyPath,
		},
	}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return e.runContext(t, context.Background(), args...)
}

func (e *testEnv) runContext(t *testing.T, ctx context.Context, args ...string) (string, error) {
	t.Helper()
	a := &app{
		cfg:    config.Default(),
		logger: zaplog.New(zap.NewNop()),
		lookupEnv: func(key string) (string, bool) {
			v, ok := e.env[key]
			return v, ok
		},
	}
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)

	return out.String(), err
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	require.NoError(t, err, out)

	return out
}

func TestEnqueueAndDrain(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustRun(t, "enqueue", "--entity", "item", "--op", "upsert", "--id", "1",
		"--payload", `{"id":1,"name":"Tea","price":20}`)
	assert.Contains(t, out, "enqueued id=1 op_id=")

	out = e.mustRun(t, "list")
	assert.Contains(t, out, "PENDING")
	assert.Contains(t, out, "ITEM")

	out = e.mustRun(t, "drain")
	assert.Equal(t, "attempted=1 delivered=1 failed=0 halted=false\n", out)
	assert.Equal(t, "Tea", e.ref.Snapshot().Items[1]["name"])

	out = e.mustRun(t, "stats")
	assert.Equal(t, "pending=0 failed=0\n", out)

	out = e.mustRun(t, "clear-done")
	assert.Equal(t, "cleared=1\n", out)
}

func TestRejectedOperationCanBeRetried(t *testing.T) {
	e := newTestEnv(t)

	e.mustRun(t, "enqueue", "--entity", "ITEM", "--op", "UPSERT", "--id", "2", "--payload", `{"id":2}`)
	e.mustRun(t, "enqueue", "--entity", "ITEM", "--op", "UPSERT", "--id", "3", "--payload", `{"id":3,"name":"Salt"}`)

	out := e.mustRun(t, "drain")
	assert.Equal(t, "attempted=1 delivered=0 failed=1 halted=true\n", out)

	out = e.mustRun(t, "list", "--failed")
	assert.Contains(t, out, "FAILED")
	assert.Contains(t, out, "rejected: missing item.name")

	out = e.mustRun(t, "stats")
	assert.Equal(t, "pending=1 failed=1\n", out)

	out = e.mustRun(t, "retry", "1")
	assert.Equal(t, "attempted=1 delivered=0 failed=1 halted=true\n", out)

	// A full retry resets the failed row and halts at it again.
	out = e.mustRun(t, "retry")
	assert.Equal(t, "attempted=1 delivered=0 failed=1 halted=true\n", out)

	e.env["SYNCBOX_CONTINUE_ON_FAILURE"] = "true"
	out = e.mustRun(t, "retry")
	assert.Equal(t, "attempted=2 delivered=1 failed=1 halted=false\n", out)
	assert.Equal(t, 1, e.ref.Counts().Items)
}

func TestDeviceIDIsStableAcrossRuns(t *testing.T) {
	e := newTestEnv(t)

	e.mustRun(t, "enqueue", "--entity", "ITEM", "--op", "DELETE", "--id", "5")
	e.mustRun(t, "drain")
	raw, err := os.ReadFile(e.env["SYNCBOX_DEVICE_ID_FILE"])
	require.NoError(t, err)
	deviceID := strings.TrimSpace(string(raw))
	require.NotEmpty(t, deviceID)

	e.mustRun(t, "enqueue", "--entity", "ITEM", "--op", "DELETE", "--id", "6")
	e.mustRun(t, "drain")
	assert.Len(t, e.ref.Snapshot().SeenOpIDs, 2)

	out := e.mustRun(t, "preview", "--entity", "ITEM", "--op", "DELETE", "--id", "6", "--envelope")
	assert.Contains(t, out, "Would DELETE /v1/items/6 body=null")
	assert.Contains(t, out, `"op": "DELETE"`)
	assert.Contains(t, out, `"deviceId": "`+deviceID+`"`)
}

func TestPreviewDoesNotTouchStore(t *testing.T) {
	e := newTestEnv(t)
	e.env["SYNCBOX_DB_DRIVER"] = "mysql"
	e.env["SYNCBOX_DSN"] = "root:secret@tcp(127.0.0.1:1)/unused"

	out := e.mustRun(t, "preview", "--entity", "PARTY", "--op", "UPSERT", "--id", "9",
		"--payload", `{"id":9,"name":"Acme","type":"VENDOR"}`)
	assert.True(t, strings.HasPrefix(out, "Would PUT /v1/parties/9 body="), out)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{
			name: "unknown entity",
			args: []string{"enqueue", "--entity", "WIDGET", "--op", "UPSERT"},
		},
		{
			name: "payload is not an object",
			args: []string{"enqueue", "--entity", "ITEM", "--op", "UPSERT", "--payload", `[1,2]`},
		},
		{
			name: "bad driver from env",
			env:  map[string]string{"SYNCBOX_DB_DRIVER": "oracle"},
			args: []string{"stats"},
		},
		{
			name: "bad batch size from env",
			env:  map[string]string{"SYNCBOX_BATCH_SIZE": "zero"},
			args: []string{"stats"},
		},
		{
			name: "drain without remote",
			env:  map[string]string{"SYNCBOX_REMOTE_URL": ""},
			args: []string{"drain"},
		},
		{
			name: "retry with bad id",
			args: []string{"retry", "abc"},
		},
		{
			name: "every without older-than",
			args: []string{"clear-done", "--every", "1s"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			for k, v := range tt.env {
				e.env[k] = v
			}
			_, err := e.run(t, tt.args...)
			require.ErrorIs(t, err, errUsage)
		})
	}
}

func TestClearDoneOlderThanKeepsRecentRows(t *testing.T) {
	e := newTestEnv(t)

	e.mustRun(t, "enqueue", "--entity", "ITEM", "--op", "DELETE", "--id", "1")
	e.mustRun(t, "drain")

	out := e.mustRun(t, "clear-done", "--older-than", "1h")
	assert.Equal(t, "cleared=0\n", out)

	out = e.mustRun(t, "clear-done")
	assert.Equal(t, "cleared=1\n", out)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, ln, httpremote.NewHandler(remote.NewReference()))
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}
