package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jgivc/dbload/internal/adapter/archive"
	"github.com/jgivc/dbload/internal/adapter/fetch"
	"github.com/jgivc/dbload/internal/adapter/sqlite"
	"github.com/jgivc/dbload/internal/config"
	httphandler "github.com/jgivc/dbload/internal/handler/http"
	"github.com/jgivc/dbload/internal/repository/catalog"
	"github.com/jgivc/dbload/internal/repository/job"
	"github.com/jgivc/dbload/internal/service/install"
	"github.com/jgivc/dbload/internal/service/load"
	"github.com/spf13/afero"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfgPath string
	cfg     *config.Config
	srv     *http.Server
	loader  *load.LoadService
	log     *slog.Logger
}

func New(cfgPath string) *App {
	return &App{
		cfgPath: cfgPath,
	}
}

func (a *App) Start() {
	a.cfg = config.MustLoad(a.cfgPath)

	lo := &slog.HandlerOptions{}
	switch a.cfg.LogLevel {
	case config.LogLevelInfo:
		lo.Level = slog.LevelInfo
	case config.LogLevelWarn:
		lo.Level = slog.LevelWarn
	case config.LogLevelError:
		lo.Level = slog.LevelError
	case config.LogLevelDebug:
		lo.Level = slog.LevelDebug
	default:
		panic("unknown log level")
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, lo))
	a.log = log

	fs := afero.NewOsFs()

	cat, err := catalog.NewCatalog(a.cfg.DatabaseDirectory, a.cfg.EnableWAL, log)
	if err != nil {
		panic(err)
	}

	jobs := job.NewJobRepository(log)
	fetcher := fetch.NewFetcher(fs, a.cfg.DownloadTimeout, log)
	extractor := archive.NewExtractor(fs, log)
	verifier := sqlite.NewVerifier(log)
	installer := install.NewInstallService(cat, fs, log)

	a.loader, err = load.NewLoadService(jobs, fetcher, extractor, verifier, installer, fs,
		a.cfg.StagingDirectory, a.cfg.URL, log)
	if err != nil {
		panic(err)
	}

	http.Handle("POST /-/load", httphandler.NewLoadHandler(a.loader, log))
	http.Handle("GET /-/load/status/{job_id}", httphandler.NewStatusHandler(a.loader, log))

	a.srv = &http.Server{
		Addr: a.cfg.Listen,
	}

	go func() {
		log.Info("Start listen", slog.String("addr", a.cfg.Listen))

		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Could not serve", slog.String("listen_addr", a.cfg.Listen), slog.Any("error", err))
			os.Exit(2)
		}
	}()
}

func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	a.srv.Shutdown(ctx)
	a.loader.Wait()
}
