package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/devtools_bridge/internal/api"
	"github.com/dgnsrekt/devtools_bridge/internal/bound"
	"github.com/dgnsrekt/devtools_bridge/internal/bridge"
	"github.com/dgnsrekt/devtools_bridge/internal/config"
	"github.com/dgnsrekt/devtools_bridge/internal/debugport"
	"github.com/dgnsrekt/devtools_bridge/internal/gateway"
	"github.com/dgnsrekt/devtools_bridge/internal/netutil"
	"github.com/dgnsrekt/devtools_bridge/internal/notify"
	"github.com/dgnsrekt/devtools_bridge/internal/relay"
	"github.com/dgnsrekt/devtools_bridge/internal/snapshot"
	"github.com/dgnsrekt/devtools_bridge/internal/telemetry"
	"github.com/dgnsrekt/devtools_bridge/internal/wire"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load bridge config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("devtools_bridge config loaded",
		"bind_addr", cfg.BindAddr,
		"port_auto_fallback", cfg.PortAutoFallback,
		"port_candidates", cfg.PortCandidates,
		"heartbeat_interval_ms", cfg.HeartbeatIntervalMS,
		"relay_enabled", cfg.RelayEnabled,
		"debug_port_url", cfg.DebugPortURL,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
		"snapshot_dir", cfg.SnapshotDir,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	reg := bridge.NewRegistry()
	corr := bridge.NewCorrelator(reg)
	store := telemetry.NewStore(bound.Limits{
		MaxStringLen:  cfg.TelemetryStringCap,
		MaxBatchBytes: cfg.TelemetryBatchBytes,
	}, cfg.TelemetryBuffer)

	snaps, err := snapshot.NewStore(cfg.SnapshotDir)
	if err != nil {
		slog.Error("failed to create snapshot store", "dir", cfg.SnapshotDir, "error", err)
		os.Exit(1)
	}

	var probe *debugport.Prober
	if cfg.DebugPortURL != "" {
		probe = debugport.NewProber(cfg.DebugPortURL)
	}

	var pub *relay.Publisher
	if cfg.RelayEnabled {
		rcfg, err := relay.LoadConfig(cfg.RelayConfig)
		if err != nil {
			slog.Warn("relay config unavailable, using built-in channels", "path", cfg.RelayConfig, "error", err)
			rcfg = relay.DefaultConfig()
		}
		pub = relay.NewPublisher(relay.NewBroker(), rcfg)
		slog.Info("relay enabled", "channels", rcfg.ChannelNames())
	}

	notifier := notify.New(cfg.NotifyURL, nil)
	reg.OnRegister(func(info bridge.AgentInfo) {
		notifier.Go(notify.Event{Event: notify.EventAgentAttached, AgentID: info.ID, Remote: info.RemoteAddr})
	})
	reg.OnUnregister(func(id string) {
		notifier.Go(notify.Event{Event: notify.EventAgentDetached, AgentID: id})
	})

	svc := gateway.NewService(corr, reg, store, snaps, probe, gateway.Timeouts{
		DOM:        time.Duration(cfg.DOMTimeoutMS) * time.Millisecond,
		Navigation: time.Duration(cfg.NavTimeoutMS) * time.Millisecond,
		Screenshot: time.Duration(cfg.ScreenshotTimeoutMS) * time.Millisecond,
	})
	h := api.NewServer(svc, api.AgentSocket{
		Registry:          reg,
		Correlator:        corr,
		Telemetry:         store,
		Relay:             pub,
		HeartbeatInterval: time.Duration(cfg.HeartbeatIntervalMS) * time.Millisecond,
	})

	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("devtools_bridge listening", "addr", bindAddr, "docs", "http://"+bindAddr+"/docs")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("devtools_bridge server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down", "agents", reg.Len())
	notifier.Go(notify.Event{Event: notify.EventShutdown})
	reg.Broadcast(wire.Control(wire.TagServerShutdown))
	reg.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("devtools_bridge shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter), &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(h))
	return nil
}
