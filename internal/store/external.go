package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const externalFetchTimeout = 30 * time.Second

// maxExternalBytes caps how much module text a remote source may return.
const maxExternalBytes = 4 << 20

// LoadExternal reads artifact source text from a local path or an http(s)
// URL. Failures surface as ErrSourceUnavailable; an empty body is a failure
// too, never silently empty code.
func LoadExternal(ctx context.Context, src string) (string, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return "", fmt.Errorf("%w: empty source", ErrSourceUnavailable)
	}
	if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
		return loadExternalURL(ctx, src)
	}
	raw, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, src, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", fmt.Errorf("%w: %s is empty", ErrSourceUnavailable, src)
	}
	return string(raw), nil
}

func loadExternalURL(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, externalFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %s: status %d", ErrSourceUnavailable, url, resp.StatusCode)
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxExternalBytes))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, url, err)
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "", fmt.Errorf("%w: %s returned empty body", ErrSourceUnavailable, url)
	}
	return string(raw), nil
}
