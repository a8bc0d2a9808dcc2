package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jgivc/dbload/internal/common"
	"github.com/jgivc/dbload/internal/util"
	"github.com/spf13/afero"
)

const (
	chunkSize           = 64 * 1024
	maxIdleConnsPerHost = 10
	idleConnTimeout     = 90 * time.Second
)

// Fetcher streams remote files to a staging filesystem in bounded chunks,
// so a download of any size holds at most one chunk in memory.
type Fetcher struct {
	client *http.Client
	fs     afero.Fs
	log    *slog.Logger
}

func NewFetcher(fs afero.Fs, timeout time.Duration, log *slog.Logger) *Fetcher {
	transport := &http.Transport{
		MaxIdleConnsPerHost: maxIdleConnsPerHost,
		IdleConnTimeout:     idleConnTimeout,
	}

	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		fs:  fs,
		log: log.With(slog.String("item", "Fetcher")),
	}
}

// Fetch downloads url into dest. It returns the declared total size (0 if
// the Content-Length header is absent or not numeric) and the byte count
// actually written. onProgress, if non-nil, is invoked after every chunk
// written. A partially written dest is left in place on error; cleanup
// belongs to the caller.
func (f *Fetcher) Fetch(ctx context.Context, url, dest string, onProgress func(doneBytes, todoBytes int64)) (todoBytes, doneBytes int64, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", common.ErrDownloadError, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", common.ErrDownloadError, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, 0, fmt.Errorf("%w: unexpected status %s fetching %s", common.ErrDownloadError, resp.Status, url)
	}

	// ContentLength is -1 when the header is missing or unparsable. That
	// is not an error, the total is simply unknown.
	if resp.ContentLength > 0 {
		todoBytes = resp.ContentLength
	}

	out, err := f.fs.Create(dest)
	if err != nil {
		return todoBytes, 0, fmt.Errorf("%w: cannot create %s: %v", common.ErrDownloadError, dest, err)
	}
	defer out.Close()

	buf := make([]byte, chunkSize)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := out.Write(buf[:n]); writeErr != nil {
				return todoBytes, doneBytes, fmt.Errorf("%w: cannot write %s: %v", common.ErrDownloadError, dest, writeErr)
			}

			doneBytes += int64(n)
			if onProgress != nil {
				onProgress(doneBytes, todoBytes)
			}
		}

		if readErr == io.EOF {
			break
		}

		if readErr != nil {
			return todoBytes, doneBytes, fmt.Errorf("%w: %v", common.ErrDownloadError, readErr)
		}
	}

	if err := out.Close(); err != nil {
		return todoBytes, doneBytes, fmt.Errorf("%w: cannot close %s: %v", common.ErrDownloadError, dest, err)
	}

	f.log.Info("Download complete", slog.String("url", url), slog.String("size", util.FormatBytes(doneBytes)))

	return todoBytes, doneBytes, nil
}
