package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/lightforgemedia/go-maxclient/internal/config"
	"github.com/lightforgemedia/go-maxclient/internal/logging"
	"github.com/lightforgemedia/go-maxclient/pkg/client"
	"github.com/lightforgemedia/go-maxclient/pkg/filewatcher"
	"github.com/lightforgemedia/go-maxclient/pkg/types"
)

func runCmd(configPath *string) *cobra.Command {
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a session and log incoming events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(*configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer logger.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if !noWatch {
				fw, err := watchConfig(ctx, *configPath, logger)
				if err != nil {
					logger.Warn("Config hot reload disabled", "error", err)
				} else {
					defer fw.Stop()
				}
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			if cfg.MetricsAddr != "" {
				srv := serveMetrics(cfg.MetricsAddr, reg, logger)
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
			}

			opts := append(cfg.ClientOptions(logger.Logger), client.WithMetrics(reg))
			cli, err := client.New(cfg.URL, opts...)
			if err != nil {
				return err
			}
			defer cli.Shutdown()
			logEvents(cli, logger)

			go func() {
				for tr := range cli.States(ctx) {
					if tr.To == client.StateConnected {
						cli.Inspect()
					}
				}
			}()

			logger.Info("Starting session", "url", cfg.URL, "device_id", cli.DeviceID())
			err = cli.Start(ctx)
			if errors.Is(err, context.Canceled) {
				logger.Info("Interrupted, session closed")
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the log level when the config file changes")
	return cmd
}

// watchConfig re-reads the file on change and applies its log level.
func watchConfig(ctx context.Context, path string, logger *logging.Logger) (*filewatcher.FileWatcher, error) {
	fw, err := filewatcher.New(
		filewatcher.WithLogger(logger.Logger),
		filewatcher.WithFiles(path),
	)
	if err != nil {
		return nil, err
	}
	fw.AddCallback(func(string) {
		cfg, err := config.Load(path)
		if err != nil {
			logger.Warn("Ignoring invalid config change", "error", err)
			return
		}
		level, _ := config.ParseLevel(cfg.Log.Level)
		logger.SetLevel(level)
	})
	if err := fw.Start(ctx); err != nil {
		return nil, err
	}
	return fw, nil
}

func serveMetrics(addr string, reg *prometheus.Registry, logger *logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("Serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}

func logEvents(cli *client.Client, logger *logging.Logger) {
	cli.OnMessage(func(ctx context.Context, m *types.Message) error {
		logger.Info("Message", "chat_id", m.ChatID, "id", m.ID, "sender", m.Sender, "text", m.Text)
		return nil
	})
	cli.OnMessageEdit(func(ctx context.Context, m *types.Message) error {
		logger.Info("Message edited", "chat_id", m.ChatID, "id", m.ID)
		return nil
	})
	cli.OnMessageDelete(func(ctx context.Context, m *types.Message) error {
		logger.Info("Message deleted", "chat_id", m.ChatID, "id", m.ID)
		return nil
	})
	cli.OnReactionChange(func(ctx context.Context, messageID types.ID, chatID int64, info types.ReactionInfo) error {
		logger.Info("Reactions changed", "chat_id", chatID, "message_id", messageID, "total", info.TotalCount)
		return nil
	})
	cli.OnChatUpdate(func(ctx context.Context, chat *types.Chat) error {
		logger.Debug("Chat updated", "chat_id", chat.ID)
		return nil
	})
}
