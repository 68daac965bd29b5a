package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/anicoll/airzone-integration/internal/pkg/airzone"
	"github.com/anicoll/airzone-integration/internal/pkg/config"
	"github.com/anicoll/airzone-integration/pkg/hasher"
)

func testConfig() *config.Config {
	return &config.Config{
		AirzoneCfg: &config.AirzoneConfig{
			PollInterval: time.Hour,
			Timeout:      time.Second,
		},
		HistoryRetention: 192 * time.Hour,
		LogLevel:         "INFO",
	}
}

func TestPoll_InitUntilReady(t *testing.T) {
	logger := zaptest.NewLogger(t)
	attempts := 0
	s := &MockSession{InitFunc: func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		attempts++
		if attempts == 1 {
			return errors.New("cloud unreachable")
		}
		return nil
	}}

	poll(context.Background(), s, time.Second, logger)
	assert.False(t, s.Ready())
	assert.Equal(t, int32(1), s.initCalls.Load())
	assert.Equal(t, int32(0), s.updateCalls.Load())

	poll(context.Background(), s, time.Second, logger)
	assert.True(t, s.Ready())

	poll(context.Background(), s, time.Second, logger)
	poll(context.Background(), s, time.Second, logger)
	assert.Equal(t, int32(2), s.initCalls.Load())
	assert.Equal(t, int32(2), s.updateCalls.Load())
}

func TestPoll_LogsFailures(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)
	s := &MockSession{
		InitFunc:   func(context.Context) error { return errors.New("boom") },
		UpdateFunc: func(context.Context) error { return errors.New("stale") },
	}

	poll(context.Background(), s, time.Second, logger)
	require.Equal(t, 1, logs.FilterMessage("failed to build device tree").Len())

	s.ready.Store(true)
	poll(context.Background(), s, time.Second, logger)
	require.Equal(t, 1, logs.FilterMessage("update failed").Len())
}

func TestSchedule_FirstPollImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &MockSession{}

	done := make(chan error, 1)
	go func() {
		done <- schedule(ctx, testConfig(), s, &MockCleaner{}, zaptest.NewLogger(t))
	}()

	require.Eventually(t, s.Ready, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("schedule did not stop")
	}
}

func TestCleanup(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var got time.Duration
	c := &MockCleaner{CleanupFunc: func(_ context.Context, retention time.Duration) error {
		got = retention
		return errors.New("db down")
	}}

	cleanup(context.Background(), c, 48*time.Hour, zap.New(core))
	assert.Equal(t, 48*time.Hour, got)
	assert.Equal(t, 1, logs.FilterMessage("error cleaning up database").Len())
}

func TestDrainErrors(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	errs := make(chan error, 2)
	errs <- &airzone.CommandError{ID: "abc", Path: "home.zone.target_temperature", Option: "consign", Err: errors.New("refused")}
	errs <- errors.New("something else")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- drainErrors(ctx, errs, zap.New(core))
	}()

	require.Eventually(t, func() bool { return logs.Len() == 2 }, time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	cmd := logs.FilterMessage("command failed").All()
	require.Len(t, cmd, 1)
	assert.Equal(t, "consign", cmd[0].ContextMap()["option"])
	assert.Equal(t, "abc", cmd[0].ContextMap()["id"])
	assert.Equal(t, 1, logs.FilterMessage("async error").Len())
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "airzone.log")

	logger, err := newLogger(cfg)
	require.NoError(t, err)
	logger.Info("hello file")
	_ = logger.Sync()

	data, err := os.ReadFile(cfg.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello file")

	cfg.LogLevel = "LOUD"
	_, err = newLogger(cfg)
	assert.Error(t, err)
}

func newTestApp(out *bytes.Buffer) *cli.App {
	return &cli.App{
		Writer: out,
		Commands: []*cli.Command{
			{
				Name:   "hash-password",
				Action: HashPasswordCommand,
				Flags:  []cli.Flag{&cli.StringFlag{Name: "password"}},
			},
			{
				Name:   "token",
				Action: TokenCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "secret"},
					&cli.StringFlag{Name: "subject", Value: "admin"},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour},
				},
			},
		},
	}
}

func TestHashPasswordCommand(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, newTestApp(out).Run([]string{"app", "hash-password", "--password", "secret"}))
	assert.True(t, hasher.PasswordCorrect("secret", strings.TrimSpace(out.String())))

	assert.Error(t, newTestApp(out).Run([]string{"app", "hash-password"}))
}

func TestTokenCommand(t *testing.T) {
	out := &bytes.Buffer{}
	require.NoError(t, newTestApp(out).Run([]string{"app", "token", "--secret", "s3cr3t"}))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, 3, len(strings.Split(lines[0], ".")))
	assert.True(t, strings.HasPrefix(lines[1], "expires "))

	assert.Error(t, newTestApp(out).Run([]string{"app", "token"}))
}
