package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jgivc/dbload/internal/common"

	_ "modernc.org/sqlite" // database/sql driver
)

const (
	driverName  = "sqlite"
	FileExt     = ".db"
	journalWAL  = "wal"
	journalNone = "delete"
)

type database struct {
	path string
	db   *sql.DB
}

// catalog is the live registry of installed databases: one open SQLite
// handle per name, backed by <dir>/<name>.db. Removing a name closes the
// handle and deletes the file.
type catalog struct {
	dir       string
	enableWAL bool

	mu  sync.RWMutex
	dbs map[string]*database
	log *slog.Logger
}

func NewCatalog(dir string, enableWAL bool, log *slog.Logger) (*catalog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory: %w", err)
	}

	c := &catalog{
		dir:       dir,
		enableWAL: enableWAL,
		dbs:       make(map[string]*database),
		log:       log.With(slog.String("item", "Catalog")),
	}

	if err := c.restore(); err != nil {
		return nil, err
	}

	return c, nil
}

// restore registers database files already present in the directory, so
// installs survive a process restart even though the job table does not.
func (c *catalog) restore() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("cannot read database directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), FileExt) {
			continue
		}

		name := strings.TrimSuffix(entry.Name(), FileExt)
		if err := c.Add(context.Background(), name, filepath.Join(c.dir, entry.Name())); err != nil {
			c.log.Error("Cannot restore database", slog.String("name", name), slog.Any("error", err))

			continue
		}

		c.log.Info("Restored database", slog.String("name", name))
	}

	return nil
}

// Path returns the canonical file path for a database name.
func (c *catalog) Path(name string) string {
	return filepath.Join(c.dir, name+FileExt)
}

// Add opens the file at path under the given name and applies the
// configured journal mode. The path must already be inside the catalog
// directory; an existing registration with the same name is an error.
func (c *catalog) Add(ctx context.Context, name, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.dbs[name]; exists {
		return fmt.Errorf("%w: database %q is already registered", common.ErrInstallError, name)
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return fmt.Errorf("%w: cannot open %s: %v", common.ErrInstallError, path, err)
	}

	mode := journalNone
	if c.enableWAL {
		mode = journalWAL
	}

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode="+mode); err != nil {
		db.Close()

		return fmt.Errorf("%w: cannot set journal mode: %v", common.ErrInstallError, err)
	}

	c.dbs[name] = &database{path: path, db: db}

	return nil
}

// Remove closes the named database and deletes its file.
func (c *catalog) Remove(ctx context.Context, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	d, ok := c.dbs[name]
	if !ok {
		return common.ErrDatabaseNotFoundError
	}

	if err := d.db.Close(); err != nil {
		c.log.Error("Cannot close database", slog.String("name", name), slog.Any("error", err))
	}

	delete(c.dbs, name)

	if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: cannot remove %s: %v", common.ErrInstallError, d.path, err)
	}

	// WAL side files may be left behind by a wal-mode database.
	os.Remove(d.path + "-wal")
	os.Remove(d.path + "-shm")

	return nil
}

func (c *catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.dbs[name]

	return ok
}

// Database returns the open handle for a registered name.
func (c *catalog) Database(name string) (*sql.DB, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.dbs[name]
	if !ok {
		return nil, common.ErrDatabaseNotFoundError
	}

	return d.db, nil
}

func (c *catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.dbs))
	for name := range c.dbs {
		names = append(names, name)
	}

	return names
}

// Close closes every registered handle. Files stay on disk.
func (c *catalog) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for name, d := range c.dbs {
		if err := d.db.Close(); err != nil {
			c.log.Error("Cannot close database", slog.String("name", name), slog.Any("error", err))
		}
	}

	c.dbs = make(map[string]*database)
}
