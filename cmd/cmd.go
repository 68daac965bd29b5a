package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	paho_mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/anicoll/airzone-integration/internal/pkg/airzone"
	"github.com/anicoll/airzone-integration/internal/pkg/config"
	"github.com/anicoll/airzone-integration/internal/pkg/contxt"
	"github.com/anicoll/airzone-integration/internal/pkg/database"
	"github.com/anicoll/airzone-integration/internal/pkg/database/migration"
	"github.com/anicoll/airzone-integration/internal/pkg/mqtt"
	"github.com/anicoll/airzone-integration/internal/pkg/publisher"
	"github.com/anicoll/airzone-integration/internal/pkg/server"
	"github.com/anicoll/airzone-integration/internal/pkg/state"
	"github.com/anicoll/airzone-integration/internal/pkg/transport"
)

const cleanupSchedule = "0 3 * * *"

func RunCommand(ctx *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if ctx.IsSet("log-level") {
		cfg.LogLevel = ctx.String("log-level")
	}
	if err := run(ctx.Context, cfg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func run(ctx context.Context, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync() // flushes buffer, if any.
	}()
	zap.ReplaceGlobals(logger)

	store := state.NewStore()
	registry := publisher.New()

	if cfg.MqttCfg.Host != "" {
		opts := paho_mqtt.NewClientOptions().
			AddBroker(cfg.MqttCfg.Host).
			SetClientID("airzone-integration").
			SetUsername(cfg.MqttCfg.Username).
			SetPassword(cfg.MqttCfg.Password).
			SetAutoReconnect(true)
		mqttSvc := mqtt.New(paho_mqtt.NewClient(opts), cfg.MqttCfg.Prefix, cfg.MqttCfg.DiscoveryPrefix, store)
		if err := mqttSvc.Connect(); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
		if err := registry.RegisterPublisher("mqtt", mqttSvc); err != nil {
			return err
		}
	}

	var db *database.Database
	if cfg.DbCfg.URL != "" {
		if cfg.DbCfg.MigrationsFolder != "" {
			if err := migration.Migrate(cfg.DbCfg.URL, cfg.DbCfg.MigrationsFolder); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		pool, err := pgxpool.New(ctx, cfg.DbCfg.URL)
		if err != nil {
			return err
		}
		db = database.NewDatabase(pool)
		defer db.Close()
		if err := registry.RegisterPublisher("postgres", db); err != nil {
			return err
		}
	}

	session, err := airzone.New(cfg.AirzoneCfg, transport.New(cfg.AirzoneCfg.Timeout), store)
	if err != nil {
		return err
	}
	prometheus.MustRegister(session.Collectors()...)

	// subscribe before the first poll declares anything.
	registry.Subscribe(store)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return registry.Run(ctx, store)
	})

	eg.Go(func() error {
		var cleaner Cleaner
		if db != nil {
			cleaner = db
		}
		return schedule(ctx, cfg, session, cleaner, logger)
	})

	eg.Go(func() error {
		api := server.New(cfg.ServerCfg, store, nil, session.Ready)
		if db != nil {
			api = server.New(cfg.ServerCfg, store, db, session.Ready)
		}
		srv := &http.Server{
			Handler:      api.Handler(),
			Addr:         cfg.ServerCfg.Addr,
			WriteTimeout: 15 * time.Second,
			ReadTimeout:  15 * time.Second,
		}
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		// handle any async errors from the session
		return drainErrors(ctx, session.Errors(), logger)
	})

	return eg.Wait()
}

// schedule polls the session every poll interval and trims history nightly
// until ctx is done. The first poll runs immediately.
func schedule(ctx context.Context, cfg *config.Config, s Session, cleaner Cleaner, logger *zap.Logger) error {
	cl := cronLogger{logger.Sugar()}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	budget := max(cfg.AirzoneCfg.PollInterval, cfg.AirzoneCfg.Timeout)
	if _, err := c.AddFunc("@every "+cfg.AirzoneCfg.PollInterval.String(), func() {
		poll(ctx, s, budget, logger)
	}); err != nil {
		return err
	}
	if cleaner != nil {
		if _, err := c.AddFunc(cleanupSchedule, func() {
			cleanup(ctx, cleaner, cfg.HistoryRetention, logger)
		}); err != nil {
			return err
		}
	}

	poll(ctx, s, budget, logger)
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// poll builds the tree until it has been built once, then refreshes it.
func poll(ctx context.Context, s Session, budget time.Duration, logger *zap.Logger) {
	ctx, cancel := contxt.NewContext(ctx, budget)
	defer cancel()

	if !s.Ready() {
		if err := s.Init(ctx); err != nil {
			logger.Error("failed to build device tree", zap.Error(err))
		}
		return
	}
	if err := s.Update(ctx); err != nil {
		logger.Warn("update failed", zap.Error(err))
	}
}

func cleanup(ctx context.Context, cleaner Cleaner, retention time.Duration, logger *zap.Logger) {
	ctx, cancel := contxt.NewContext(ctx, time.Minute)
	defer cancel()

	if err := cleaner.Cleanup(ctx, retention); err != nil {
		logger.Error("error cleaning up database", zap.Error(err))
	}
}

func drainErrors(ctx context.Context, errs <-chan error, logger *zap.Logger) error {
	for {
		select {
		case err := <-errs:
			var cmdErr *airzone.CommandError
			if errors.As(err, &cmdErr) {
				logger.Error("command failed",
					zap.String("id", cmdErr.ID),
					zap.String("path", cmdErr.Path),
					zap.String("option", cmdErr.Option),
					zap.Error(cmdErr.Err),
				)
				continue
			}
			logger.Error("async error", zap.Error(err))
		case <-ctx.Done():
			logger.Info("context done")
			return ctx.Err()
		}
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logCfg := zap.NewProductionConfig()
	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logCfg.Level = level
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil

	opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.LogFile != "" {
		rotator := zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		})
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(logCfg.EncoderConfig), rotator, level)
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}
	return logCfg.Build(opts...)
}

// cronLogger routes cron's own logging through zap.
type cronLogger struct {
	logger *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.logger.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
