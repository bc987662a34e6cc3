package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const maxDocumentBytes = 10 << 20 // cap reads to 10MB

// HTTPEngine is the no-browser acquisition path: a single GET with no JS.
// It serves as the fallback when Chrome cannot initialise; the dashboard
// ships its above-the-fold markup server-side, so a plain fetch still yields
// a parsable document.
type HTTPEngine struct {
	client *http.Client
	ua     string
}

// NewHTTPEngine creates the engine. The per-request deadline comes from the
// caller's context, not from the client.
func NewHTTPEngine(userAgent string) *HTTPEngine {
	return &HTTPEngine{
		client: &http.Client{Timeout: 0},
		ua:     userAgent,
	}
}

func (e *HTTPEngine) Name() string { return "http" }

// Acquire always succeeds; there is no process to initialise.
func (e *HTTPEngine) Acquire(ctx context.Context) (Session, error) {
	return &httpSession{client: e.client, ua: e.ua}, nil
}

func (e *HTTPEngine) Close() error { return nil }

type httpSession struct {
	client *http.Client
	ua     string
}

func (s *httpSession) Navigate(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: new request: %w", err)
	}
	req.Header.Set("User-Agent", s.ua)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := s.client.Do(req)
	if err != nil {
		if timedOut(err) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
		}
		return nil, fmt.Errorf("browser: get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("browser: get %s: http %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("browser: read body: %w", err)
	}
	return body, nil
}

// Capture is unsupported without a renderer.
func (s *httpSession) Capture(ctx context.Context) ([]byte, error) {
	return nil, errors.New("browser: http engine cannot capture screenshots")
}

func (s *httpSession) Close() error { return nil }

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
