// Command server runs the automation rule engine: HTTP API, optional NATS
// event source, seed rule loading and the record retention sweeper.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/gyaneshwarpardhi/autorule/internal/action"
	"github.com/gyaneshwarpardhi/autorule/internal/action/notify"
	"github.com/gyaneshwarpardhi/autorule/internal/action/task"
	"github.com/gyaneshwarpardhi/autorule/internal/api"
	"github.com/gyaneshwarpardhi/autorule/internal/config"
	"github.com/gyaneshwarpardhi/autorule/internal/engine"
	"github.com/gyaneshwarpardhi/autorule/internal/retention"
	"github.com/gyaneshwarpardhi/autorule/internal/source"
	"github.com/gyaneshwarpardhi/autorule/internal/store"
)

func main() {
	var (
		configPath = flag.String("config", "configs/server.yaml", "path to server config")
		addr       = flag.String("addr", "", "listen address (overrides config)")
		logLevel   = flag.String("log-level", "info", "log level: debug, info, warn, error")
	)
	flag.Parse()

	setupLogging(*logLevel)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "err", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.HTTP.Addr = *addr
	}

	if err := run(cfg); err != nil {
		slog.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func setupLogging(level string) {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv})
	slog.SetDefault(slog.New(h))
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	slog.Info("store ready", "driver", cfg.Store.Driver)

	// Optional broker connection, shared by the event source and the
	// notification executor.
	var nc *nats.Conn
	if cfg.NATS.URL != "" {
		nc, err = nats.Connect(cfg.NATS.URL,
			nats.Name("autorule"),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
		)
		if err != nil {
			return fmt.Errorf("connect to nats %s: %w", cfg.NATS.URL, err)
		}
		defer nc.Close()
		slog.Info("connected to nats", "url", cfg.NATS.URL)
	}

	reg := buildRegistry(nc, cfg.NATS.NotifySubject)
	eng := engine.New(ctx, st, reg, cfg.Engine)

	if cfg.RulesFile != "" {
		stopWatch, err := seedRules(ctx, cfg.RulesFile, st, reg)
		if err != nil {
			return fmt.Errorf("seed rules: %w", err)
		}
		defer stopWatch()
	}

	var src *source.NATS
	if nc != nil {
		src, err = source.SubscribeNATS(nc, cfg.NATS.Subject, cfg.NATS.Queue, eng)
		if err != nil {
			return fmt.Errorf("subscribe events: %w", err)
		}
	}

	sweeper := retention.NewSweeper(st,
		time.Duration(cfg.Retention.RecordMaxAgeDays)*24*time.Hour,
		time.Duration(cfg.Retention.SweepIntervalMinutes)*time.Minute,
	)
	go sweeper.Run(ctx)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.New(eng, st, reg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errC := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errC <- err
		}
	}()

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errC:
		return err
	case sig := <-sigC:
		slog.Info("shutting down", "signal", sig.String())
	}

	// Stop intake first, then drain in-flight work.
	if src != nil {
		src.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}
	eng.Shutdown()
	cancel()
	slog.Info("shutdown complete")
	return nil
}

func openStore(sc config.StoreConf) (store.Store, error) {
	switch sc.Driver {
	case "memory":
		return store.NewMemory(), nil
	case "sqlite":
		return store.OpenSQLite(sc.DSN)
	case "postgres":
		return store.OpenPostgres(sc.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

func buildRegistry(nc *nats.Conn, notifySubject string) *action.Registry {
	reg := action.NewRegistry()
	dir := task.NewInMemoryDirectory()
	reg.Register(task.NewAssign(dir))
	reg.Register(task.NewStatus(dir))

	var notifier notify.Notifier = notify.LogNotifier{}
	if nc != nil {
		notifier = notify.NewNATSNotifier(nc, notifySubject)
	}
	reg.Register(notify.NewExecutor(notifier))
	return reg
}

// seedRules applies the rule file at startup and re-applies it whenever the
// file changes on disk.
func seedRules(ctx context.Context, path string, st store.Store, reg *action.Registry) (func(), error) {
	loader, err := config.NewRuleLoader(path)
	if err != nil {
		return nil, err
	}

	apply := func(rf *config.RuleFile) {
		if err := applyRuleFile(ctx, rf, st, reg); err != nil {
			slog.Error("failed to apply seed rules", "path", path, "err", err)
		}
	}
	apply(loader.Rules())
	loader.OnChange(apply)

	stop, err := loader.Watch()
	if err != nil {
		return nil, err
	}
	slog.Info("watching seed rule file", "path", path)
	return stop, nil
}

// applyRuleFile upserts every definition, matching existing rules by
// (created_by, name). Rules absent from the file are left alone.
func applyRuleFile(ctx context.Context, rf *config.RuleFile, st store.Store, reg *action.Registry) error {
	existing, err := st.List(ctx, store.ListFilter{})
	if err != nil {
		return err
	}
	byKey := make(map[string]string, len(existing))
	for _, r := range existing {
		byKey[r.CreatedBy+"\x00"+r.Name] = r.ID
	}

	var created, updated int
	for _, def := range rf.Rules {
		r := def.ToRule()
		if err := r.Validate(); err != nil {
			slog.Warn("skipping invalid seed rule", "rule", def.Name, "err", err)
			continue
		}
		if err := reg.ValidateSpecs(r.Actions); err != nil {
			slog.Warn("skipping seed rule with bad actions", "rule", def.Name, "err", err)
			continue
		}
		if id, ok := byKey[r.CreatedBy+"\x00"+r.Name]; ok {
			r.ID = id
			if err := st.Update(ctx, r); err != nil {
				slog.Warn("failed to update seed rule", "rule", def.Name, "err", err)
				continue
			}
			updated++
		} else {
			r.ID = uuid.New().String()
			if err := st.Create(ctx, r); err != nil {
				slog.Warn("failed to create seed rule", "rule", def.Name, "err", err)
				continue
			}
			created++
		}
	}
	slog.Info("seed rules applied", "created", created, "updated", updated, "total", len(rf.Rules))
	return nil
}
