package install

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/jgivc/dbload/internal/common"
	"github.com/spf13/afero"
)

const serviceName = "install"

// Catalog is the live database registry the coordinator installs into.
type Catalog interface {
	Has(name string) bool
	Path(name string) string
	Add(ctx context.Context, name, path string) error
	Remove(ctx context.Context, name string) error
}

// InstallService swaps verified database files into the catalog. Installs
// for the same name serialize on a per-name lock, so one job's
// remove-then-add can never interleave with another's; distinct names do
// not contend.
type InstallService struct {
	catalog Catalog
	fs      afero.Fs

	mu    sync.Mutex
	names map[string]*sync.Mutex

	log *slog.Logger
}

func NewInstallService(catalog Catalog, fs afero.Fs, log *slog.Logger) *InstallService {
	return &InstallService{
		catalog: catalog,
		fs:      fs,
		names:   make(map[string]*sync.Mutex),
		log:     log.With(slog.String("service", serviceName)),
	}
}

// Install registers the verified file under name, replacing any existing
// database of that name. The file is moved, not copied, unless staging and
// the database directory are on different filesystems. The previous
// database is only removed here, after its replacement has already passed
// verification, so the unprotected window is the add itself.
func (s *InstallService) Install(ctx context.Context, name, verifiedPath string) error {
	lock := s.nameLock(name)
	lock.Lock()
	defer lock.Unlock()

	if s.catalog.Has(name) {
		s.log.Info("Replacing existing database", slog.String("name", name))

		if err := s.catalog.Remove(ctx, name); err != nil {
			return fmt.Errorf("%w: cannot remove existing database %q: %v", common.ErrInstallError, name, err)
		}
	}

	finalPath := s.catalog.Path(name)

	if err := s.moveFile(verifiedPath, finalPath); err != nil {
		return fmt.Errorf("%w: cannot move %s to %s: %v", common.ErrInstallError, verifiedPath, finalPath, err)
	}

	if err := s.catalog.Add(ctx, name, finalPath); err != nil {
		// Do not leave an unregistered file in the database directory.
		s.fs.Remove(finalPath)

		return err
	}

	s.log.Info("Installed database", slog.String("name", name), slog.String("path", finalPath))

	return nil
}

func (s *InstallService) nameLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.names[name]
	if !ok {
		lock = &sync.Mutex{}
		s.names[name] = lock
	}

	return lock
}

// moveFile renames src to dst, falling back to copy-and-delete when the
// rename crosses filesystems.
func (s *InstallService) moveFile(src, dst string) error {
	err := s.fs.Rename(src, dst)
	if err == nil {
		return nil
	}

	s.log.Debug("Rename failed, copying instead", slog.String("src", src), slog.Any("error", err))

	in, err := s.fs.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := s.fs.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}

	if err := out.Close(); err != nil {
		return err
	}

	return s.fs.Remove(src)
}
