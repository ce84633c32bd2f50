// Package runtime assembles the service: telemetry, history store, event
// bus, synthesis engine, and the HTTP server, with ordered shutdown.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kokovox/kokovox/internal/bus"
	"github.com/kokovox/kokovox/internal/config"
	"github.com/kokovox/kokovox/internal/history"
	"github.com/kokovox/kokovox/internal/httpapi"
	"github.com/kokovox/kokovox/internal/natsserver"
	"github.com/kokovox/kokovox/internal/orchestrator"
	"github.com/kokovox/kokovox/internal/synth"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the service up and blocks until ctx is cancelled, then
// shuts everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := history.Open(ctx, r.cfg.History, r.logger.With(slog.String("component", "history")))
	if err != nil {
		return fmt.Errorf("failed to open history store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			r.logger.Error("history close error", slog.String("error", err.Error()))
		}
	}()

	embedded, busClient := r.startBus(ctx)
	defer func() {
		busClient.Close()
		embedded.Shutdown()
	}()

	engine := synth.NewEngine(r.cfg.Synth, synthFactory(r.cfg.Synth), r.logger)
	orch := orchestrator.New(engine, r.cfg.Synth, r.logger)
	recorder := newRecorder(store, busClient, r.logger)
	api := httpapi.NewRouter(r.cfg, orch, engine, recorder, r.logger)

	mux := http.NewServeMux()
	mux.Handle("/", api)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}
	mux.HandleFunc("/healthz", r.handleHealthz)
	mux.HandleFunc("/readyz", r.handleReadyz)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.String("synth_mode", r.cfg.Synth.Mode),
		slog.String("default_voice", r.cfg.Synth.DefaultVoice))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	r.wg.Wait()

	if err := store.Prune(shutdownCtx); err != nil {
		r.logger.Warn("history prune on shutdown failed", slog.String("error", err.Error()))
	}

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}

// startBus brings up the optional event bus. Failures degrade to log-only
// operation; the audio path never depends on the bus.
func (r *Runtime) startBus(ctx context.Context) (*natsserver.EmbeddedServer, *bus.Client) {
	if !r.cfg.Bus.Enabled {
		return nil, nil
	}

	busCfg := r.cfg.Bus
	embedded, err := natsserver.Start(busCfg, r.logger.With(slog.String("component", "nats-server")))
	if err != nil {
		r.logger.Warn("embedded NATS server failed, continuing without bus",
			slog.String("error", err.Error()))
		return nil, nil
	}
	if busCfg.Embedded {
		busCfg.Servers = []string{fmt.Sprintf("nats://127.0.0.1:%d", busCfg.Port)}
	}

	client, err := bus.Connect(ctx, busCfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		r.logger.Warn("bus connection failed, continuing without bus",
			slog.String("error", err.Error()))
		embedded.Shutdown()
		return nil, nil
	}
	return embedded, client
}

// synthFactory picks the synthesizer implementation by configured mode.
// Config validation already rejected unknown modes.
func synthFactory(cfg config.SynthConfig) synth.Factory {
	return func() (synth.Synthesizer, error) {
		switch cfg.Mode {
		case "exec":
			return synth.NewExecSynth(cfg.Command, cfg.ModelRepo, cfg.SampleRate, cfg.Channels)
		default:
			return synth.NewMockSynth(cfg.SampleRate, cfg.Channels), nil
		}
	}
}

func (r *Runtime) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
