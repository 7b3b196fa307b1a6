// Supervisor - chat bridge to Claude and watchdog for a local gateway.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/ashureev/supervisor/internal/agent"
	"github.com/ashureev/supervisor/internal/api"
	"github.com/ashureev/supervisor/internal/bot"
	"github.com/ashureev/supervisor/internal/config"
	"github.com/ashureev/supervisor/internal/domain"
	"github.com/ashureev/supervisor/internal/health"
	"github.com/ashureev/supervisor/internal/identity"
	"github.com/ashureev/supervisor/internal/session"
	"github.com/ashureev/supervisor/internal/store"
	"github.com/ashureev/supervisor/internal/telegram"
	"github.com/ashureev/supervisor/internal/tts"
	"github.com/ashureev/supervisor/internal/watchdog"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Supervisor failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath, envFile string
	flagSet := pflag.NewFlagSet("supervisor", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "optional YAML file with base settings (environment wins)")
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "No %s file found, using environment variables\n", envFile)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Chat transport. A bad token is the only fatal startup check.
	var clientOpts []telegram.Option
	if cfg.TelegramAPI != "" {
		clientOpts = append(clientOpts, telegram.WithBaseURL(cfg.TelegramAPI))
	}
	tg := telegram.New(cfg.BotToken, clientOpts...)
	me, err := tg.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("verify bot token: %w", err)
	}
	slog.Info("Bot connected", "username", me.Username, "allowed_user", cfg.AllowedUser)

	// Journal.
	var (
		history   api.History
		observers []bot.TurnObserver
		notifiers []watchdog.Notifier
	)
	if cfg.DBPath != "" {
		journal, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if closeErr := journal.Close(); closeErr != nil {
				slog.Error("Failed to close journal", "error", closeErr)
			}
		}()
		if err := journal.Ping(ctx); err != nil {
			return fmt.Errorf("journal health check: %w", err)
		}
		slog.Info("Journal opened", "path", cfg.DBPath)

		recorder := store.NewRecorder(journal)
		observers = append(observers, recorder)
		notifiers = append(notifiers, recorder)
		history = journal
		store.StartRetentionWorker(ctx, journal, cfg.JournalRetention)
	}

	// Health.
	manager, err := health.NewServiceManager(cfg.Service.Manager, cfg.Service.Name, cfg.Service.Target, health.ExecRunner)
	if err != nil {
		return fmt.Errorf("service manager: %w", err)
	}
	probe := health.NewProbe(cfg.Health, manager)
	slog.Info("Health probe configured", "manager", manager.Kind(), "service", cfg.Service.Name, "port", cfg.Health.Port)

	// Assistant and chat surface.
	sessions := session.NewRegistry()
	replies := session.NewReplies()
	runner := agent.NewRunner(cfg.Agent, sessions, agent.ExecLauncher{})
	sender := bot.NewSender(tg, cfg.MaxMessageLen)

	hub := api.NewHub()
	observers = append(observers, hub)
	coord := bot.NewCoordinator(runner, tg, sender, replies, bot.CoordinatorConfig{
		Policy:         cfg.Edits,
		TypingInterval: cfg.Typing,
	}, observers...)

	var voice bot.Synthesizer
	if cfg.TTSEnabled {
		voice = tts.New(cfg.TTS)
	}

	dispatcher := bot.NewDispatcher(bot.Deps{
		Updates:  tg,
		Messages: tg,
		Sender:   sender,
		Gate:     identity.NewGate(cfg.AllowedUser),
		Coord:    coord,
		Sessions: sessions,
		Replies:  replies,
		Health:   probe,
		Voice:    voice,
	}, bot.DispatcherConfig{PollTimeout: cfg.PollTimeout})

	// Watchdog fan-out: operator chat first, then history and status feeds.
	notifiers = append([]watchdog.Notifier{
		bot.NewAlertNotifier(sender, domain.ConversationID(cfg.AlertChatID), cfg.Health.Label),
	}, notifiers...)
	notifiers = append(notifiers, hub)

	var grpcHealth *api.GRPCHealth
	if cfg.GRPCHealthAddr != "" {
		grpcHealth = api.NewGRPCHealth(cfg.Service.Name)
		notifiers = append(notifiers, grpcHealth)
	}
	dog := watchdog.New(probe, cfg.HealthInterval, notifiers...)

	var wg sync.WaitGroup
	start := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			slog.Info("Component stopped", "component", name)
		}()
	}

	start("watchdog", func() { dog.Run(ctx) })
	start("dispatcher", func() {
		if err := dispatcher.Run(ctx); err != nil {
			slog.Error("Dispatcher failed", "error", err)
		}
	})

	if grpcHealth != nil {
		start("grpc-health", func() {
			if err := grpcHealth.Serve(ctx, cfg.GRPCHealthAddr); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		})
	}

	var srv *http.Server
	if cfg.StatusAddr != "" {
		handler := api.NewHandler(dog.Snapshot, history, cfg.Health.Label)
		srv = &http.Server{
			Addr:        cfg.StatusAddr,
			Handler:     api.NewRouter(handler, hub, api.RouterConfig{Token: cfg.StatusToken}),
			ReadTimeout: 30 * time.Second,
			// Websocket feed connections are long-lived.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		}
		start("status-server", func() {
			slog.Info("Status server listening", "addr", srv.Addr, "auth", cfg.StatusToken != "")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Status server failed", "error", err)
			}
		})
	}

	slog.Info("Supervisor running", "health_interval", cfg.HealthInterval, "timeout", cfg.Agent.Timeout)

	<-ctx.Done()
	stop()
	slog.Info("Shutting down gracefully...")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Status server forced to shutdown", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("Supervisor stopped")
	case <-time.After(agent.DefaultWaitGrace + cfg.Agent.Timeout):
		slog.Warn("Timed out waiting for components to stop")
	}
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
