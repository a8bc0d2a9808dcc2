package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jgivc/dbload/internal/common"

	_ "modernc.org/sqlite" // database/sql driver
)

const (
	driverName     = "sqlite"
	integrityOK    = "ok"
	integrityQuery = "PRAGMA integrity_check"
)

// Verifier is the last gate before a file may replace a live database: it
// opens the candidate as SQLite and runs the engine's built-in consistency
// check. It must be pointed at the final post-extraction file, never at a
// raw archive.
type Verifier struct {
	log *slog.Logger
}

func NewVerifier(log *slog.Logger) *Verifier {
	return &Verifier{
		log: log.With(slog.String("item", "Verifier")),
	}
}

// Verify runs PRAGMA integrity_check against the file. Any result other
// than a single "ok" row, or any failure to open the file as a database at
// all, fails with the engine's diagnostic text embedded.
func (v *Verifier) Verify(ctx context.Context, path string) error {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return fmt.Errorf("%w: cannot open %s: %v", common.ErrIntegrityError, path, err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, integrityQuery)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrIntegrityError, err)
	}
	defer rows.Close()

	var problems []string

	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("%w: %v", common.ErrIntegrityError, err)
		}

		if line != integrityOK {
			problems = append(problems, line)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: %v", common.ErrIntegrityError, err)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", common.ErrIntegrityError, strings.Join(problems, "; "))
	}

	v.log.Debug("Integrity check passed", slog.String("path", path))

	return nil
}
