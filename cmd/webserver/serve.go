package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gotcp/webserver"
	"github.com/gotcp/webserver/internal/accounts"
	"github.com/gotcp/webserver/internal/config"
	"github.com/gotcp/webserver/internal/docroot"
	"github.com/gotcp/webserver/internal/httpconn"
	"github.com/gotcp/webserver/internal/logger"
	"github.com/gotcp/webserver/internal/metrics"
	"github.com/gotcp/webserver/internal/resource"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		Long: `Start the server in the foreground.

Flags override the configuration file and WEBSERVER_* environment
variables. SIGTERM or SIGINT shuts the server down.`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "listening port")
	cmd.Flags().String("host", "", "listening IPv4 address")
	cmd.Flags().String("root", "", "document root")
	cmd.Flags().IntP("workers", "t", 0, "worker count")
	cmd.Flags().Int("max-connections", 0, "connection table size")
	cmd.Flags().Int("max-queued", 0, "work queue capacity")
	cmd.Flags().Duration("idle-timeout", 0, "close connections idle for this long")
	cmd.Flags().String("trigger", "", "trigger mode: level or edge")
	cmd.Flags().Int("accounts", 0, "accounts session pool size")
	cmd.Flags().String("log-level", "", "log level: DEBUG, INFO, WARN, ERROR")
	cmd.Flags().Bool("async-log", false, "write log lines from a background goroutine")
	cmd.Flags().Bool("metrics", false, "serve Prometheus metrics")

	return cmd
}

// applyFlags copies the flags that were set onto cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	var flags = cmd.Flags()
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("root") {
		cfg.HTTP.DocRoot, _ = flags.GetString("root")
	}
	if flags.Changed("workers") {
		cfg.Server.Workers, _ = flags.GetInt("workers")
	}
	if flags.Changed("max-connections") {
		cfg.Server.MaxConnections, _ = flags.GetInt("max-connections")
	}
	if flags.Changed("max-queued") {
		cfg.Server.MaxQueued, _ = flags.GetInt("max-queued")
	}
	if flags.Changed("idle-timeout") {
		d, _ := flags.GetDuration("idle-timeout")
		cfg.Server.IdleTimeout = config.Duration(d)
	}
	if flags.Changed("trigger") {
		cfg.Server.TriggerMode, _ = flags.GetString("trigger")
	}
	if flags.Changed("accounts") {
		cfg.Accounts.Capacity, _ = flags.GetInt("accounts")
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("async-log") {
		cfg.Logging.Async, _ = flags.GetBool("async-log")
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enabled, _ = flags.GetBool("metrics")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Logging.Level,
		Output:     cfg.Logging.Output,
		Async:      cfg.Logging.Async,
		QueueSize:  cfg.Logging.QueueSize,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Flush()

	var ctx, cancel = context.WithCancel(cmd.Context())
	defer cancel()

	store, err := accounts.OpenStore(ctx, cfg.Accounts.Type, cfg.Accounts.StoreOptions())
	if err != nil {
		return fmt.Errorf("open accounts store: %w", err)
	}
	var acc = accounts.New(store, cfg.Accounts.BcryptCost)
	defer func() {
		if err := acc.Close(); err != nil {
			logger.Error("close accounts store: %v", err)
		}
	}()
	if err := acc.Seed(cfg.Accounts.Seed); err != nil {
		return err
	}

	pool, err := resource.New(ctx, cfg.Accounts.Capacity, acc.Dial)
	if err != nil {
		return fmt.Errorf("open accounts sessions: %w", err)
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Error("close accounts sessions: %v", err)
		}
	}()

	root, err := docroot.New(cfg.HTTP.DocRoot)
	if err != nil {
		return err
	}

	var serverMetrics = metrics.NewServerMetrics(nil)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		serverMetrics = metrics.NewServerMetrics(metrics.GetRegistry())
		var metricsServer = metrics.NewServer(metrics.ServerConfig{
			Host: cfg.Metrics.Host,
			Port: cfg.Metrics.Port,
		}, metrics.GetRegistry())
		go func() {
			if err := metricsServer.Start(ctx); err != nil {
				logger.Error("%v", err)
			}
		}()
	}

	trigger, err := webserver.ParseTriggerMode(cfg.Server.TriggerMode)
	if err != nil {
		return err
	}

	ep, err := webserver.New(webserver.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		MaxConnections:  cfg.Server.MaxConnections,
		MaxQueued:       cfg.Server.MaxQueued,
		Workers:         cfg.Server.Workers,
		IdleTimeout:     cfg.Server.IdleTimeout.Std(),
		TickInterval:    cfg.Server.TickInterval.Std(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout.Std(),
		TriggerMode:     trigger,
		AcceptRate:      cfg.Server.AcceptRate,
		AcceptBurst:     cfg.Server.AcceptBurst,
		HandleSignals:   true,
		Site: &httpconn.Site{
			Root:        root,
			DefaultPage: cfg.HTTP.DefaultPage,
			Aliases:     cfg.HTTP.Aliases,
			Pages: httpconn.Pages{
				Welcome:       cfg.HTTP.Pages.Welcome,
				LoginError:    cfg.HTTP.Pages.LoginError,
				Registered:    cfg.HTTP.Pages.Registered,
				RegisterError: cfg.HTTP.Pages.RegisterError,
			},
		},
		Resources: pool,
		Metrics:   serverMetrics,
		OnError: func(fd int, code webserver.ErrorCode, err error) {
			if code == webserver.ERROR_QUEUE_FULL {
				return
			}
			logger.Debug("fd %d: %s: %v", fd, code, err)
		},
	})
	if err != nil {
		return fmt.Errorf("start reactor: %w", err)
	}

	logger.Info("webserver %s serving %s", version, root.Dir())
	if err := ep.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
