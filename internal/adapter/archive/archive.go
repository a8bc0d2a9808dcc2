package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/jgivc/dbload/internal/common"
	"github.com/jgivc/dbload/internal/entity"
	"github.com/spf13/afero"
)

const (
	// MaxExpansionRatio caps how much larger the extracted database may be
	// than the downloaded archive. Extraction aborts as soon as the ceiling
	// would be crossed, never after decompressing fully.
	MaxExpansionRatio = 20

	extractedSuffix = ".extracted"

	sqliteHeaderLen = 16
)

var (
	zipSignature   = []byte{'P', 'K', 0x03, 0x04}
	gzipSignature  = []byte{0x1f, 0x8b}
	sqliteMagic    = []byte("SQLite format 3\x00")
	maxSignatureLn = len(zipSignature)
)

// container is one recognized archive format wrapping a database file.
type container interface {
	// extractSingleMember finds the one qualifying member and streams it to
	// dest, honoring the byte ceiling. Zero or multiple qualifying members
	// is an error.
	extractSingleMember(dest afero.File, limit int64) error
}

// Extractor resolves a downloaded file to a single database file: raw
// downloads pass through unchanged, recognized containers (zip, gzip-tar)
// are unpacked with compression-bomb defense.
type Extractor struct {
	fs  afero.Fs
	log *slog.Logger
}

func NewExtractor(fs afero.Fs, log *slog.Logger) *Extractor {
	return &Extractor{
		fs:  fs,
		log: log.With(slog.String("item", "Extractor")),
	}
}

// InspectAndExtract detects the container format of the file by signature
// and, for a recognized archive, extracts its single database member to a
// fresh path next to the original. The archive itself is deleted once
// extraction has succeeded or failed; a raw file is returned as-is.
func (e *Extractor) InspectAndExtract(path string, downloadedSize int64) (*entity.ExtractionResult, error) {
	format, err := e.detect(path)
	if err != nil {
		return nil, err
	}

	if format == entity.FormatRaw {
		return &entity.ExtractionResult{
			Path:           path,
			Format:         format,
			DownloadedSize: downloadedSize,
		}, nil
	}

	dest := path + extractedSuffix

	if err := e.extract(format, path, dest, downloadedSize); err != nil {
		e.fs.Remove(dest)
		e.fs.Remove(path)

		return nil, err
	}

	e.fs.Remove(path)

	e.log.Info("Extracted archive member",
		slog.String("archive", path),
		slog.String("format", format.String()),
		slog.String("dest", dest))

	return &entity.ExtractionResult{
		Path:           dest,
		Format:         format,
		DownloadedSize: downloadedSize,
	}, nil
}

// detect sniffs the container signature. Anything that is neither zip nor
// gzip is treated as a raw database file, detection never looks at names.
func (e *Extractor) detect(path string) (entity.ContainerFormat, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return entity.FormatRaw, fmt.Errorf("%w: cannot open %s: %v", common.ErrArchiveError, path, err)
	}
	defer f.Close()

	sig := make([]byte, maxSignatureLn)
	n, err := f.Read(sig)
	if err != nil && err != io.EOF {
		return entity.FormatRaw, fmt.Errorf("%w: cannot read %s: %v", common.ErrArchiveError, path, err)
	}
	sig = sig[:n]

	switch {
	case bytes.HasPrefix(sig, zipSignature):
		return entity.FormatZip, nil
	case bytes.HasPrefix(sig, gzipSignature):
		return entity.FormatGzipTar, nil
	default:
		return entity.FormatRaw, nil
	}
}

func (e *Extractor) extract(format entity.ContainerFormat, path, dest string, downloadedSize int64) error {
	f, err := e.fs.Open(path)
	if err != nil {
		return fmt.Errorf("%w: cannot open %s: %v", common.ErrArchiveError, path, err)
	}
	defer f.Close()

	var c container

	switch format {
	case entity.FormatZip:
		info, err := e.fs.Stat(path)
		if err != nil {
			return fmt.Errorf("%w: cannot stat %s: %v", common.ErrArchiveError, path, err)
		}

		zr, err := zip.NewReader(f, info.Size())
		if err != nil {
			return fmt.Errorf("%w: cannot read zip archive: %v", common.ErrArchiveError, err)
		}

		c = &zipContainer{r: zr}

	case entity.FormatGzipTar:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("%w: cannot read gzip stream: %v", common.ErrArchiveError, err)
		}
		defer gz.Close()

		c = &gzipTarContainer{r: tar.NewReader(gz)}

	default:
		return fmt.Errorf("%w: unsupported container format", common.ErrArchiveError)
	}

	out, err := e.fs.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: cannot create %s: %v", common.ErrArchiveError, dest, err)
	}
	defer out.Close()

	limit := MaxExpansionRatio * downloadedSize

	if err := c.extractSingleMember(out, limit); err != nil {
		return err
	}

	return out.Close()
}

// errLimitExceeded signals the copy hit the expansion ceiling.
var errLimitExceeded = errors.New("limit exceeded")

// copyLimited streams src to dst but fails once more than limit bytes have
// been written, so a bomb is cut off mid-stream instead of filling the disk.
func copyLimited(dst io.Writer, src io.Reader, limit int64) (int64, error) {
	written, err := io.Copy(dst, io.LimitReader(src, limit+1))
	if err != nil {
		return written, err
	}

	if written > limit {
		return written, errLimitExceeded
	}

	return written, nil
}

func bombError() error {
	return fmt.Errorf("%w: extracted file would be more than %dx the size of the downloaded archive",
		common.ErrArchiveError, MaxExpansionRatio)
}

// isDatabaseHeader reports whether the first bytes of a member look like a
// SQLite database.
func isDatabaseHeader(header []byte) bool {
	return bytes.HasPrefix(header, sqliteMagic)
}

type zipContainer struct {
	r *zip.Reader
}

func (c *zipContainer) extractSingleMember(dest afero.File, limit int64) error {
	var selected *zip.File

	for _, member := range c.r.File {
		if member.FileInfo().IsDir() {
			continue
		}

		ok, err := c.memberIsDatabase(member)
		if err != nil {
			return err
		}

		if !ok {
			continue
		}

		if selected != nil {
			return fmt.Errorf("%w: archive contains more than one database file", common.ErrArchiveError)
		}

		selected = member
	}

	if selected == nil {
		return fmt.Errorf("%w: no database file found in archive", common.ErrArchiveError)
	}

	rc, err := selected.Open()
	if err != nil {
		return fmt.Errorf("%w: cannot open member %s: %v", common.ErrArchiveError, selected.Name, err)
	}
	defer rc.Close()

	if _, err := copyLimited(dest, rc, limit); err != nil {
		if errors.Is(err, errLimitExceeded) {
			return bombError()
		}

		return fmt.Errorf("%w: cannot extract member %s: %v", common.ErrArchiveError, selected.Name, err)
	}

	return nil
}

func (c *zipContainer) memberIsDatabase(member *zip.File) (bool, error) {
	rc, err := member.Open()
	if err != nil {
		return false, fmt.Errorf("%w: cannot open member %s: %v", common.ErrArchiveError, member.Name, err)
	}
	defer rc.Close()

	header := make([]byte, sqliteHeaderLen)
	n, err := io.ReadFull(rc, header)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return false, fmt.Errorf("%w: cannot read member %s: %v", common.ErrArchiveError, member.Name, err)
	}

	return isDatabaseHeader(header[:n]), nil
}

type gzipTarContainer struct {
	r *tar.Reader
}

// extractSingleMember walks the tar stream in one pass: the first
// qualifying member is extracted while scanning continues, so a second
// qualifying member still fails the archive as ambiguous.
func (c *gzipTarContainer) extractSingleMember(dest afero.File, limit int64) error {
	extracted := false

	for {
		hdr, err := c.r.Next()
		if err == io.EOF {
			break
		}

		if err != nil {
			return fmt.Errorf("%w: cannot read tar archive: %v", common.ErrArchiveError, err)
		}

		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		header := make([]byte, sqliteHeaderLen)
		n, err := io.ReadFull(c.r, header)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return fmt.Errorf("%w: cannot read member %s: %v", common.ErrArchiveError, hdr.Name, err)
		}

		if !isDatabaseHeader(header[:n]) {
			continue
		}

		if extracted {
			return fmt.Errorf("%w: archive contains more than one database file", common.ErrArchiveError)
		}

		if _, err := dest.Write(header[:n]); err != nil {
			return fmt.Errorf("%w: cannot extract member %s: %v", common.ErrArchiveError, hdr.Name, err)
		}

		if _, err := copyLimited(dest, c.r, limit-int64(n)); err != nil {
			if errors.Is(err, errLimitExceeded) {
				return bombError()
			}

			return fmt.Errorf("%w: cannot extract member %s: %v", common.ErrArchiveError, hdr.Name, err)
		}

		extracted = true
	}

	if !extracted {
		return fmt.Errorf("%w: no database file found in archive", common.ErrArchiveError)
	}

	return nil
}
