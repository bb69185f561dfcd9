package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-reader/internal/bus"
	"github.com/loqalabs/loqa-reader/internal/config"
	"github.com/loqalabs/loqa-reader/internal/conversion"
	"github.com/loqalabs/loqa-reader/internal/natsserver"
	"github.com/loqalabs/loqa-reader/internal/playback"
	"github.com/loqalabs/loqa-reader/internal/synthesis"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	telemetry  *telemetry
	embedded   *natsserver.EmbeddedServer
	bus        *bus.Client
	components *Components
	service    *conversion.Service
	session    *session
	ready      atomic.Bool
	wg         sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tel, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetry = tel
	defer r.shutdown()

	if err := r.startBus(ctx); err != nil {
		return err
	}

	components, err := OpenComponents(ctx, r.cfg, r.logger)
	if err != nil {
		return err
	}
	r.components = components

	voice, _ := synthesis.ParseVoice(r.cfg.Synthesis.DefaultVoice)
	r.service = conversion.NewService(ctx, r.bus, components.Converter, voice, r.logger)
	if err := r.service.Start(); err != nil {
		return fmt.Errorf("start conversion service: %w", err)
	}

	r.session = newSession(playback.NewBusReporter(r.bus.Conn()), r.cfg.Playback.SkipInterval(), r.logger)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.session.run(ctx, r.cfg.Playback.ReportInterval())
	}()

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slogError(err))
			cancel()
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slogError(err))
	}
	r.wg.Wait()
	return nil
}

func (r *Runtime) startBus(ctx context.Context) error {
	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return err
	}
	r.embedded = embedded

	busCfg := r.cfg.Bus
	if embedded != nil {
		busCfg.Servers = []string{embedded.ClientURL()}
	}
	client, err := bus.Connect(ctx, busCfg, r.logger)
	if err != nil {
		return err
	}
	r.bus = client
	return nil
}

// shutdown releases everything Start acquired, newest first.
func (r *Runtime) shutdown() {
	if r.service != nil {
		r.service.Close()
	}
	r.bus.Close()
	r.embedded.Shutdown()
	if err := r.components.Close(); err != nil {
		r.logger.Error("library close error", slogError(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.telemetry.Shutdown(ctx); err != nil {
		r.logger.Error("telemetry shutdown error", slogError(err))
	}
}

func (r *Runtime) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	a := &api{manager: r.components.Manager, session: r.session, logger: r.logger.With(slog.String("component", "http"))}
	a.register(mux)
	return mux
}

func (r *Runtime) isReady() bool {
	return r.ready.Load() && r.bus.Healthy() && r.service != nil && r.service.Healthy()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.isReady() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
