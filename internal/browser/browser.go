package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrNoPage is returned when an attached browser has no open tab
var ErrNoPage = errors.New("browser has no open page")

// Options configures how the browser is obtained
type Options struct {
	ControlURL string // attach to a running browser instead of launching one
	ProfileDir string // Chrome/Chromium profile directory for authenticated sessions
	Bin        string
	Headless   bool
	Width      int
	Height     int
	URL        string // page to open; empty means use the current tab
}

// Browser wraps the Rod browser and the page the run works on
type Browser struct {
	browser  *rod.Browser
	page     *rod.Page
	ownsPage bool
	launcher *launcher.Launcher
}

// Open launches Chromium, or attaches to a running one when ControlURL is set,
// and selects the page to work on.
//
// When attached, the first open tab is used unless URL is set, in which case a
// new tab is opened at URL. Pages opened by Open are closed by Close; a browser
// that was attached to is left running.
func Open(ctx context.Context, opts Options) (*Browser, error) {
	b := &Browser{}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(opts.Headless)
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		} else if path, found := launcher.LookPath(); found {
			l = l.Bin(path)
		}
		if opts.ProfileDir != "" {
			l = l.UserDataDir(opts.ProfileDir)
		}

		u, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		b.launcher = l
		controlURL = u
	}

	b.browser = rod.New().Context(ctx).ControlURL(controlURL)
	if err := b.browser.Connect(); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	page, err := b.selectPage(opts)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.page = page
	b.ownsPage = opts.URL != ""

	if opts.Width > 0 && opts.Height > 0 && b.launcher != nil {
		err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             opts.Width,
			Height:            opts.Height,
			DeviceScaleFactor: 1,
		})
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to set viewport: %w", err)
		}
	}

	if opts.URL != "" {
		if err := page.WaitLoad(); err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to load %s: %w", opts.URL, err)
		}
		// Wait for network to be idle, bounded so persistent connections do not hang us
		page.Timeout(5*time.Second).WaitRequestIdle(500*time.Millisecond, nil, nil, nil)()
	}

	return b, nil
}

func (b *Browser) selectPage(opts Options) (*rod.Page, error) {
	if opts.URL != "" {
		page, err := b.browser.Page(proto.TargetCreateTarget{URL: opts.URL})
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", opts.URL, err)
		}
		return page, nil
	}

	pages, err := b.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	if len(pages) == 0 {
		return nil, ErrNoPage
	}
	return pages.First(), nil
}

// Close cleans up browser resources
func (b *Browser) Close() {
	if b.launcher == nil {
		// attached to someone else's browser, only close our own tab
		if b.ownsPage && b.page != nil {
			_ = b.page.Close()
		}
		return
	}
	if b.browser != nil {
		_ = b.browser.Close()
	}
	b.launcher.Kill()
	b.launcher.Cleanup()
}

// Page returns the underlying Rod page
func (b *Browser) Page() *rod.Page {
	return b.page
}

// URL returns the address of the working page
func (b *Browser) URL(ctx context.Context) (string, error) {
	info, err := b.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("failed to read page info: %w", err)
	}
	return info.URL, nil
}

// WaitForItems polls until at least one element matches selector or timeout
// elapses. It returns the number of matches; zero is not an error, the list
// may simply be empty.
func WaitForItems(ctx context.Context, page *rod.Page, selector string, timeout time.Duration) (int, error) {
	deadline := time.Now().Add(timeout)
	checkInterval := 200 * time.Millisecond

	for {
		res, err := page.Context(ctx).Eval(`(sel) => document.querySelectorAll(sel).length`, selector)
		if err != nil {
			return 0, fmt.Errorf("failed to count items: %w", err)
		}
		if n := res.Value.Int(); n > 0 || !time.Now().Before(deadline) {
			return n, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(checkInterval):
		}
	}
}
