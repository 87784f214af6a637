package local

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"gamedeck/internal/backend"
)

// TestMirrorLatencies sends a HEAD request to every url concurrently. Any
// HTTP response below 500 counts as reachable; timeouts and transport
// errors leave the latency unset.
func (b *Backend) TestMirrorLatencies(ctx context.Context, urls []string, timeout time.Duration) ([]backend.LatencyResult, error) {
	results := make([]backend.LatencyResult, len(urls))
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var g errgroup.Group
	for i, u := range urls {
		g.Go(func() error {
			results[i] = b.probe(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

func (b *Backend) probe(ctx context.Context, rawURL string) backend.LatencyResult {
	result := backend.LatencyResult{URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return result
	}
	req.Header.Set("User-Agent", "gamedeck/1.0")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		b.logger.WithField("url", rawURL).Debugf("mirror probe failed: %v", err)
		return result
	}
	resp.Body.Close()

	ms := time.Since(start).Milliseconds()
	result.LatencyMs = &ms
	result.OK = resp.StatusCode < http.StatusInternalServerError
	return result
}
