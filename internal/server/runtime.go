package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/thypress/thypress/internal/cache"
	"github.com/thypress/thypress/internal/config"
	"github.com/thypress/thypress/internal/content"
	"github.com/thypress/thypress/internal/logging"
	"github.com/thypress/thypress/internal/redirect"
	"github.com/thypress/thypress/internal/render"
	"github.com/thypress/thypress/internal/theme"
	"github.com/thypress/thypress/internal/watcher"
)

// watchDebounce coalesces raw filesystem events before classification.
const watchDebounce = 100 * time.Millisecond

// Runtime assembles the full serving stack for one site root.
type Runtime struct {
	Config    *config.Config
	Log       logging.Logger
	Store     *content.Store
	Pipeline  *content.Pipeline
	Themes    *theme.Manager
	Engine    *cache.Engine
	Optimizer *content.Optimizer
	Hub       *ReloadHub
	Service   *Service
	Mutator   *Mutator

	watcher *watcher.FileWatcher
}

// NewRuntime constructs every component against the configuration.
func NewRuntime(cfg *config.Config, log logging.Logger) (*Runtime, error) {
	store := content.NewStore()
	pipeline := content.NewPipeline(cfg, log)
	engine := cache.NewEngine(cfg.Site.CacheMaxSize)

	htmlEngine := render.NewHTMLEngine()
	resolver := theme.NewResolver(cfg, htmlEngine, log)
	themes := theme.NewManager(cfg, resolver, log)

	optimizer := content.NewOptimizer(cfg.ImagesDir(), content.CopyResizer{}, log)
	hub := NewReloadHub(log, streamIdleTimeout())

	redirects, problems, err := redirect.Load(cfg.RedirectsPath())
	if err != nil {
		return nil, err
	}
	for _, problem := range problems {
		log.Warn(context.Background(), nil, "redirect rule problem", "detail", problem)
	}

	service := NewService(cfg, log, store, themes, engine, pipeline, optimizer, hub, redirects)
	mutator := NewMutator(cfg, log, service)

	return &Runtime{
		Config:    cfg,
		Log:       log.WithComponent("runtime"),
		Store:     store,
		Pipeline:  pipeline,
		Themes:    themes,
		Engine:    engine,
		Optimizer: optimizer,
		Hub:       hub,
		Service:   service,
		Mutator:   mutator,
	}, nil
}

// streamIdleTimeout reads the optional live-reload idle timeout from the
// environment; zero means streams stay open indefinitely.
func streamIdleTimeout() time.Duration {
	raw := os.Getenv("THYPRESS_STREAM_IDLE_TIMEOUT")
	if raw == "" {
		return 0
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// Prepare loads the theme and ingests all content. Both are required
// before serving or exporting.
func (rt *Runtime) Prepare(ctx context.Context) error {
	if err := rt.Themes.Load(ctx); err != nil {
		return fmt.Errorf("theme: %w", err)
	}
	rt.Pipeline.Prescan()
	if err := rt.Pipeline.IngestAll(ctx, rt.Store); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	rt.Optimizer.Schedule(content.ImageRefsUnion(rt.Store))

	if rt.Config.Mode != config.ModeDynamic && !rt.Config.Site.DisablePreRender {
		if err := rt.Service.PreRender(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Watch starts filesystem watching and the serialized mutation path.
// Only dynamic mode watches.
func (rt *Runtime) Watch(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(watchDebounce, rt.Log)
	if err != nil {
		return err
	}
	rt.watcher = fw

	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoDraftsFilter)
	if len(rt.Config.Site.SkipDirs) > 0 {
		fw.AddFilter(watcher.SkipDirsFilter(rt.Config.Site.SkipDirs))
	}
	fw.AddHandler(rt.Mutator.Handler())

	if err := fw.AddPath(rt.Config.Root); err != nil {
		return err
	}
	if err := fw.AddRecursive(rt.Config.ContentRoot()); err != nil {
		rt.Log.Warn(ctx, err, "content root not watchable")
	}
	if _, statErr := os.Stat(rt.Config.TemplatesRoot()); statErr == nil {
		if err := fw.AddRecursiveOptional(rt.Config.TemplatesRoot()); err != nil {
			rt.Log.Warn(ctx, err, "templates root not watchable")
		}
	}

	go rt.Mutator.Run(ctx)
	return fw.Start(ctx)
}

// Serve runs the HTTP server until ctx is cancelled, then drains
// in-flight requests.
func (rt *Runtime) Serve(ctx context.Context) error {
	if rt.Config.Mode == config.ModeDynamic {
		if err := rt.Watch(ctx); err != nil {
			return err
		}
		go rt.Hub.Run(ctx)
	}
	go rt.Service.Metrics().Report(ctx, rt.Log)

	addr := net.JoinHostPort(rt.Config.Host, strconv.Itoa(rt.Config.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           rt.Service,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d: %w", rt.Config.Port, err)
	}
	rt.Log.Success(ctx, "serving", "addr", "http://"+addr, "mode", string(rt.Config.Mode))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(listener) }()

	// A nil watcher leaves dead blocking forever.
	var dead <-chan error
	if rt.watcher != nil {
		dead = rt.watcher.Dead()
	}

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case err := <-dead:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if rt.watcher != nil {
		if err := rt.watcher.Stop(); err != nil {
			rt.Log.Warn(shutdownCtx, err, "stopping watcher")
		}
	}
	rt.Optimizer.Flush(shutdownCtx)
	return srv.Shutdown(shutdownCtx)
}
