package czml

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxDocumentBytes caps a single CZML download.
const maxDocumentBytes = 50 << 20

// Fetcher retrieves raw CZML documents from http(s) URLs or from files
// relative to a base directory.
type Fetcher struct {
	baseDir    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewFetcher creates a Fetcher that resolves relative paths against baseDir.
func NewFetcher(baseDir string, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		baseDir: baseDir,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}
}

// Fetch returns the document at location.
func (f *Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return f.fetchHTTP(ctx, location)
	}
	return f.readFile(location)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code %d from %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("document from %s exceeds %d byte limit", url, maxDocumentBytes)
	}

	f.logger.Debug("fetched czml document", "component", "czml", "url", url, "bytes", len(body))
	return body, nil
}

func (f *Fetcher) readFile(location string) ([]byte, error) {
	path := strings.TrimPrefix(location, "file://")
	if !filepath.IsAbs(path) {
		path = filepath.Join(f.baseDir, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", location, err)
	}
	if info.Size() > maxDocumentBytes {
		return nil, fmt.Errorf("document %s exceeds %d byte limit", location, maxDocumentBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", location, err)
	}
	return data, nil
}
