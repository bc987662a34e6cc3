package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// ChromeEngine drives headless Chrome through Rod. The Chrome process is
// launched lazily on first Acquire and reused across cycles; each Acquire
// opens a fresh stealth tab so a stuck page never leaks into the next cycle.
type ChromeEngine struct {
	ua     string
	logger *slog.Logger

	mu      sync.Mutex
	lnch    *launcher.Launcher
	browser *rod.Browser
}

// NewChromeEngine creates the engine. Chrome is not started until Acquire.
func NewChromeEngine(userAgent string, logger *slog.Logger) *ChromeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeEngine{ua: userAgent, logger: logger}
}

func (e *ChromeEngine) Name() string { return "chrome" }

// Acquire connects to Chrome (launching it if needed) and opens a new tab.
func (e *ChromeEngine) Acquire(ctx context.Context) (Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browser == nil {
		if err := e.launchLocked(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
	}

	page, err := stealth.Page(e.browser)
	if err != nil {
		// A dead Chrome surfaces here; drop the handle and relaunch once.
		e.logger.Warn("browser: tab open failed, relaunching chrome", "error", err)
		e.teardownLocked()
		if err := e.launchLocked(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
		page, err = stealth.Page(e.browser)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}
	}

	if e.ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: e.ua}); err != nil {
			e.logger.Warn("browser: set user agent failed", "error", err)
		}
	}

	return &chromeSession{page: page, logger: e.logger}, nil
}

// Close shuts down the Chrome process.
func (e *ChromeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
	return nil
}

func (e *ChromeEngine) launchLocked() error {
	l := launcher.New().
		Headless(true).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu")

	u, err := l.Launch()
	if err != nil {
		return fmt.Errorf("launch: %w", err)
	}

	b := rod.New().ControlURL(u)
	if err := b.Connect(); err != nil {
		l.Cleanup()
		return fmt.Errorf("connect: %w", err)
	}

	e.lnch = l
	e.browser = b
	e.logger.Info("browser: launched chrome", "url", u)
	return nil
}

func (e *ChromeEngine) teardownLocked() {
	if e.browser != nil {
		e.browser.Close()
		e.browser = nil
	}
	if e.lnch != nil {
		e.lnch.Cleanup()
		e.lnch = nil
	}
}

type chromeSession struct {
	page   *rod.Page
	logger *slog.Logger
}

// Navigate loads the URL, scrolls through the page so lazily rendered
// sections attach, and serialises the DOM.
func (s *chromeSession) Navigate(ctx context.Context, url string) ([]byte, error) {
	p := s.page.Context(ctx)

	if err := p.Navigate(url); err != nil {
		return nil, navErr(url, err)
	}
	if err := p.WaitLoad(); err != nil {
		if timedOut(err) {
			return nil, navErr(url, err)
		}
		s.logger.Warn("browser: wait load", "url", url, "error", err)
	}

	// The dashboard renders sections as they scroll into view.
	for _, pos := range []string{"/3", "*2/3", ""} {
		js := fmt.Sprintf(`() => window.scrollTo(0, document.body.scrollHeight%s)`, pos)
		if _, err := p.Eval(js); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			return nil, navErr(url, ctx.Err())
		case <-time.After(300 * time.Millisecond):
		}
	}

	res, err := p.Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, navErr(url, err)
	}
	return []byte(res.Value.Str()), nil
}

func (s *chromeSession) Capture(ctx context.Context) ([]byte, error) {
	shot, err := s.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return shot, nil
}

func (s *chromeSession) Close() error {
	return s.page.Close()
}

func navErr(url string, err error) error {
	if timedOut(err) {
		return fmt.Errorf("%w: %s", ErrNavigationTimeout, url)
	}
	return fmt.Errorf("browser: navigate %s: %w", url, err)
}

func timedOut(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
