package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// DefaultBootstrapTimeout is the reference client's 30-second budget for
// the snapshot download. OpenOrBootstrap does not read it: the download is
// bounded by the timeout argument its caller passes.
const DefaultBootstrapTimeout = 30 * time.Second

// OpenOrBootstrap opens the header file at path, downloading a snapshot
// from bootstrapURL first if the file does not already exist. A failed or
// timed-out download is logged and NOT fatal: the store falls back to an
// empty file, exactly as the reference client's init_headers_file does,
// and ingestion proceeds from height 0.
func OpenOrBootstrap(ctx context.Context, log *slog.Logger, path, bootstrapURL string, timeout time.Duration) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}

	if _, err := os.Stat(path); err == nil {
		return Open(path)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, storeerr(ERR_STORE_IO, err, "stat %s", path)
	}

	if bootstrapURL == "" {
		log.Info("no bootstrap url configured, starting from empty header file", "path", path)
		return createEmpty(path)
	}

	if err := downloadSnapshot(ctx, log, bootstrapURL, path, timeout); err != nil {
		log.Warn("bootstrap snapshot download failed, starting from empty header file", "url", bootstrapURL, "error", err)
		return createEmpty(path)
	}
	return Open(path)
}

func createEmpty(path string) (*Store, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, storeerr(ERR_STORE_IO, err, "create empty header file %s", path)
	}
	if err := f.Close(); err != nil {
		return nil, storeerr(ERR_STORE_IO, err, "close empty header file %s", path)
	}
	return Open(path)
}

// downloadSnapshot fetches bootstrapURL and writes it to a temp file next
// to path, then renames it into place, so a failed or interrupted
// download never leaves a partial header file for Open to trip over.
func downloadSnapshot(ctx context.Context, log *slog.Logger, bootstrapURL, path string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bootstrapURL, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bootstrap: unexpected status %d", resp.StatusCode)
	}

	tmp := path + ".download"
	out, err := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer os.Remove(tmp)

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	log.Info("downloaded header snapshot", "url", bootstrapURL, "path", path)
	return os.Rename(tmp, path)
}
