package job

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jgivc/dbload/internal/common"
	"github.com/jgivc/dbload/internal/entity"
)

const statusPathFormat = "%s/-/load/status/%s"

// jobRepository is the in-memory job table. It lives for the process
// lifetime and is never torn down; entries are created by submissions and
// mutated only by that job's worker goroutine. The map itself is the only
// shared structure, so the lock here guards insert and lookup only.
type jobRepository struct {
	mu   sync.RWMutex
	jobs map[string]*entity.Job
	log  *slog.Logger
}

func NewJobRepository(log *slog.Logger) *jobRepository {
	return &jobRepository{
		jobs: make(map[string]*entity.Job),
		log:  log.With(slog.String("item", "JobRepository")),
	}
}

// Create allocates a job record with a fresh unique id and registers it.
// baseURL is the public base used to build the job's status URL.
func (r *jobRepository) Create(sourceURL, name, baseURL string) *entity.Job {
	id := uuid.NewString()

	j := &entity.Job{
		ID:        id,
		SourceURL: sourceURL,
		Name:      name,
		StatusURL: fmt.Sprintf(statusPathFormat, baseURL, id),
	}

	r.mu.Lock()
	r.jobs[id] = j
	r.mu.Unlock()

	r.log.Info("Job created", slog.String("id", id), slog.String("url", sourceURL), slog.String("name", name))

	return j
}

func (r *jobRepository) Get(id string) (*entity.Job, error) {
	r.mu.RLock()
	j, ok := r.jobs[id]
	r.mu.RUnlock()

	if !ok {
		return nil, common.ErrJobNotFoundError
	}

	return j, nil
}

// Snapshot returns the serializable view of a job's current state.
func (r *jobRepository) Snapshot(id string) (*entity.JobSnapshot, error) {
	j, err := r.Get(id)
	if err != nil {
		return nil, err
	}

	return j.Snapshot(), nil
}
