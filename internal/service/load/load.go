package load

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/jgivc/dbload/internal/entity"
	"github.com/spf13/afero"
)

const (
	serviceName = "load"

	downloadSuffix = ".download"
)

type JobRepository interface {
	Create(sourceURL, name, baseURL string) *entity.Job
	Snapshot(id string) (*entity.JobSnapshot, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url, dest string, onProgress func(doneBytes, todoBytes int64)) (todoBytes, doneBytes int64, err error)
}

type Extractor interface {
	InspectAndExtract(path string, downloadedSize int64) (*entity.ExtractionResult, error)
}

type Verifier interface {
	Verify(ctx context.Context, path string) error
}

type Installer interface {
	Install(ctx context.Context, name, verifiedPath string) error
}

// LoadService owns the load pipeline: it creates the job record, runs the
// download/extract/verify/install stages in a background goroutine and
// reflects every stage outcome on that record. A started job always
// reaches done=true, whatever fails inside the pipeline stays on the job.
type LoadService struct {
	repo       JobRepository
	fetcher    Fetcher
	extractor  Extractor
	verifier   Verifier
	installer  Installer
	fs         afero.Fs
	stagingDir string
	baseURL    string

	wg  sync.WaitGroup
	log *slog.Logger
}

func NewLoadService(
	repo JobRepository,
	fetcher Fetcher,
	extractor Extractor,
	verifier Verifier,
	installer Installer,
	fs afero.Fs,
	stagingDir, baseURL string,
	log *slog.Logger,
) (*LoadService, error) {
	if err := fs.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create staging directory: %w", err)
	}

	return &LoadService{
		repo:       repo,
		fetcher:    fetcher,
		extractor:  extractor,
		verifier:   verifier,
		installer:  installer,
		fs:         fs,
		stagingDir: stagingDir,
		baseURL:    baseURL,
		log:        log.With(slog.String("service", serviceName)),
	}, nil
}

// Submit registers a job for the given url/name pair and starts its worker.
// It returns the initial snapshot immediately, the pipeline continues in
// the background and is observed through Status.
func (s *LoadService) Submit(sourceURL, name string) *entity.JobSnapshot {
	j := s.repo.Create(sourceURL, name, s.baseURL)

	s.wg.Add(1)
	go s.run(j)

	return j.Snapshot()
}

// Status returns the current snapshot of a job.
func (s *LoadService) Status(id string) (*entity.JobSnapshot, error) {
	return s.repo.Snapshot(id)
}

// Wait blocks until every started job has reached a terminal state.
func (s *LoadService) Wait() {
	s.wg.Wait()
}

// run drives one job to its terminal state. Stage errors and panics alike
// end up as the job's error string, nothing escapes the worker.
func (s *LoadService) run(j *entity.Job) {
	defer s.wg.Done()

	log := s.log.With(slog.String("job_id", j.ID), slog.String("name", j.Name))

	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", slog.Any("panic", r))
			j.Fail(fmt.Sprintf("internal error: %v", r))
		}
	}()

	dest := filepath.Join(s.stagingDir, j.ID+downloadSuffix)
	extractedPath := ""

	// Staging files are scoped to the job: whatever the pipeline leaves
	// behind on any exit path is removed here. Success moves the final
	// file out of staging, so these become no-ops.
	defer func() {
		s.fs.Remove(dest)

		if extractedPath != "" && extractedPath != dest {
			s.fs.Remove(extractedPath)
		}
	}()

	ctx := context.Background()

	log.Info("Job started", slog.String("url", j.SourceURL))

	_, downloaded, err := s.fetcher.Fetch(ctx, j.SourceURL, dest, j.SetProgress)
	if err != nil {
		log.Error("Download failed", slog.Any("error", err))
		j.Fail(err.Error())

		return
	}

	result, err := s.extractor.InspectAndExtract(dest, downloaded)
	if err != nil {
		log.Error("Extraction failed", slog.Any("error", err))
		j.Fail(err.Error())

		return
	}
	extractedPath = result.Path

	if err := s.verifier.Verify(ctx, result.Path); err != nil {
		log.Error("Verification failed", slog.Any("error", err))
		j.Fail(err.Error())

		return
	}

	if err := s.installer.Install(ctx, j.Name, result.Path); err != nil {
		log.Error("Install failed", slog.Any("error", err))
		j.Fail(err.Error())

		return
	}

	j.Succeed()
	log.Info("Job succeeded")
}
