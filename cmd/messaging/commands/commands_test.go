package commands

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/messaging-system/config"
	"github.com/oksasatya/messaging-system/pkg/mailer"
	"github.com/oksasatya/messaging-system/pkg/queue"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.LogFile = filepath.Join(t.TempDir(), "messaging_system.log")
	cfg.LogStdout = false
	return cfg
}

func TestRootCommandTree(t *testing.T) {
	root := NewRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["worker"])
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("RABBITMQ_EMAIL_QUEUE=from-env-file\n"), 0o600))
	t.Setenv("RABBITMQ_EMAIL_QUEUE", "")
	require.NoError(t, os.Unsetenv("RABBITMQ_EMAIL_QUEUE"))

	a := &app{envFile: path}
	require.NoError(t, a.loadConfig())
	assert.Equal(t, "from-env-file", a.cfg.RabbitMQEmailQueue)
}

func TestLoadConfigErrors(t *testing.T) {
	a := &app{envFile: filepath.Join(t.TempDir(), "missing.env")}
	assert.Error(t, a.loadConfig())

	t.Setenv("WORKER_ACK_MODE", "sometimes")
	a = &app{}
	err := a.loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WorkerAckMode")
}

func TestSetupLoggingWritesLines(t *testing.T) {
	cfg := testConfig(t)
	cfg.LogStdout = true
	var stdout bytes.Buffer

	logs, err := setupLogging(cfg, &stdout)
	require.NoError(t, err)
	logs.Logger.Info("hello")
	logs.Close()

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3} - messaging_system - INFO - hello\n$`, string(data))
	assert.Equal(t, string(data), stdout.String())
}

func TestNewRelay(t *testing.T) {
	cfg := testConfig(t)

	relay, err := newRelay(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "smtp", relay.Name())
	smtp, ok := relay.(*mailer.SMTPRelay)
	require.True(t, ok)
	assert.Equal(t, "smtp.gmail.com", smtp.Host)
	assert.Equal(t, 465, smtp.Port)
	assert.True(t, smtp.ImplicitTLS)

	cfg.MailProvider = "mailgun"
	relay, err = newRelay(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "mailgun", relay.Name())

	cfg.MailProvider = "pigeon"
	_, err = newRelay(context.Background(), cfg)
	assert.Error(t, err)
}

func TestServeEngine(t *testing.T) {
	cfg := testConfig(t)
	cfg.GinMode = "test"
	logs, err := setupLogging(cfg, nil)
	require.NoError(t, err)
	defer logs.Close()

	c, cleanup := buildContainer(cfg, logs)
	defer cleanup()
	engine := newEngine(c)

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/?talktome", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Request logged at ")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/logs", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Talktome request received at ")
	assert.NotContains(t, w.Body.String(), "Log file accessed")

	w = httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

type flakyRunner struct {
	calls  atomic.Int32
	cancel context.CancelFunc
}

func (f *flakyRunner) Run(ctx context.Context, handle queue.Handler) error {
	if f.calls.Add(1) == 3 {
		f.cancel()
		<-ctx.Done()
		return nil
	}
	return errors.New("connection refused")
}

func TestConsumeLoopReconnects(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &flakyRunner{cancel: cancel}

	err := consumeLoop(ctx, r, func(context.Context, mailer.EmailJob) {}, time.Millisecond, logger)

	assert.NoError(t, err)
	assert.Equal(t, int32(3), r.calls.Load())
	assert.Equal(t, "email worker stopped", hook.LastEntry().Message)
}

func TestConsumeLoopStopsDuringDelay(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r := &flakyRunner{cancel: func() {}}

	start := time.Now()
	err := consumeLoop(ctx, r, func(context.Context, mailer.EmailJob) {}, time.Hour, logger)

	assert.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, int32(1), r.calls.Load())
}
