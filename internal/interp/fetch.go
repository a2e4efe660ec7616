package interp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"pkt.systems/pslog"
)

// maxModuleSize caps a downloaded interpreter module.
const maxModuleSize = 256 << 20

// Fetcher retrieves the interpreter module from a URL or a local path.
type Fetcher struct {
	Client *http.Client
	Retry  RetryConfig
}

// NewFetcher creates a fetcher with a bounded HTTP client and the default retry policy.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Client: &http.Client{Timeout: 90 * time.Second},
		Retry:  DefaultRetryConfig(),
	}
}

// Fetch returns the bytes at source. http and https URLs are downloaded with
// retries, file:// URLs and plain paths are read from disk.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return withRetry(ctx, source, f.Retry, func(ctx context.Context) ([]byte, error) {
			return f.get(ctx, source)
		})
	}

	path := strings.TrimPrefix(source, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func (f *Fetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{URL: url, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxModuleSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxModuleSize {
		return nil, fmt.Errorf("module at %s exceeds %d bytes", url, maxModuleSize)
	}
	return data, nil
}

// NewLoader returns a Loader that fetches the module at source and compiles it
// into a WasmRuntime. A nil fetcher uses NewFetcher.
func NewLoader(source string, fetcher *Fetcher, opts WasmOptions) Loader {
	if fetcher == nil {
		fetcher = NewFetcher()
	}
	return func(ctx context.Context) (Runtime, error) {
		if source == "" {
			return nil, &LoadError{Err: fmt.Errorf("no interpreter module configured")}
		}

		data, err := fetcher.Fetch(ctx, source)
		if err != nil {
			return nil, &LoadError{Source: source, Err: err}
		}
		pslog.Ctx(ctx).Info("interp.fetch.done", "source", source, "bytes", len(data))

		rt, err := NewWasmRuntime(ctx, data, opts)
		if err != nil {
			return nil, &LoadError{Source: source, Err: err}
		}
		return rt, nil
	}
}
