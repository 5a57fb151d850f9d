// internal/document/chrome.go
package document

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"notification-workers/internal/common/config"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// A4 in inches.
const (
	a4Width  = 8.27
	a4Height = 11.69
)

const probeTimeout = 5 * time.Second

// ChromeEngine prints HTML through a shared headless Chrome process. Every
// render gets its own tab, closed when the render returns. A browser that
// stops answering is dropped and the next render launches a new one.
type ChromeEngine struct {
	loadTimeout time.Duration
	launch      func() (context.Context, context.CancelFunc, error)
	probe       func(browserCtx context.Context) error

	mu         sync.Mutex
	browserCtx context.Context
	cancel     context.CancelFunc
}

func NewChromeEngine(cfg config.RendererConfig) *ChromeEngine {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ChromePath))
	}

	return &ChromeEngine{
		loadTimeout: config.GetDuration(cfg.LoadTimeout),
		launch: func() (context.Context, context.CancelFunc, error) {
			return launchChrome(opts)
		},
		probe: probeChrome,
	}
}

func launchChrome(opts []chromedp.ExecAllocatorOption) (context.Context, context.CancelFunc, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	cancel := func() {
		cancelBrowser()
		cancelAlloc()
	}
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("failed to start chrome: %w", err)
	}
	return browserCtx, cancel, nil
}

// probeChrome evaluates a constant in the browser's first tab.
func probeChrome(browserCtx context.Context) error {
	ctx, cancel := context.WithTimeout(browserCtx, probeTimeout)
	defer cancel()
	var one int
	return chromedp.Run(ctx, chromedp.Evaluate("1", &one))
}

// Start launches the browser process. Renders call it on demand.
func (e *ChromeEngine) Start() error {
	_, err := e.browser()
	return err
}

// browser returns the running browser, launching one when none is running
// or the previous process has gone away.
func (e *ChromeEngine) browser() (context.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.browserCtx != nil && e.browserCtx.Err() == nil {
		return e.browserCtx, nil
	}
	e.shutdownLocked()

	browserCtx, cancel, err := e.launch()
	if err != nil {
		return nil, err
	}
	e.browserCtx, e.cancel = browserCtx, cancel
	return browserCtx, nil
}

// recoverBrowser drops browserCtx when it no longer answers. A newer browser
// launched by a concurrent render is left alone.
func (e *ChromeEngine) recoverBrowser(browserCtx context.Context) {
	if browserCtx.Err() == nil && e.probe(browserCtx) == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.browserCtx == browserCtx {
		e.shutdownLocked()
	}
}

func (e *ChromeEngine) shutdownLocked() {
	if e.cancel != nil {
		e.cancel()
	}
	e.browserCtx, e.cancel = nil, nil
}

// RenderPDF loads html, waits for the network to go idle (bounded by the
// load timeout) and prints an A4 PDF with the footer on every page.
func (e *ChromeEngine) RenderPDF(ctx context.Context, html string, opts PDFOptions) ([]byte, error) {
	browserCtx, err := e.browser()
	if err != nil {
		return nil, err
	}

	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	defer cancelTab()

	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	idle := make(chan cdp.LoaderID, 16)
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if lifecycle, ok := ev.(*page.EventLifecycleEvent); ok && lifecycle.Name == "networkIdle" {
			select {
			case idle <- lifecycle.LoaderID:
			default:
			}
		}
	})

	var pdf []byte
	err = chromedp.Run(tabCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			dataURL := "data:text/html;charset=utf-8;base64," + base64.StdEncoding.EncodeToString([]byte(html))
			_, loaderID, errText, err := page.Navigate(dataURL).Do(ctx)
			if err != nil {
				return err
			}
			if errText != "" {
				return fmt.Errorf("page load failed: %s", errText)
			}
			return e.waitNetworkIdle(ctx, idle, loaderID)
		}),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().
				WithPaperWidth(a4Width).
				WithPaperHeight(a4Height).
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate("<span></span>").
				WithFooterTemplate(opts.FooterHTML).
				WithMarginTop(0.4).
				WithMarginBottom(0.9).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = data
			return nil
		}),
	)
	if err != nil {
		if ctx.Err() == nil {
			e.recoverBrowser(browserCtx)
		}
		return nil, fmt.Errorf("chrome render failed: %w", err)
	}

	return pdf, nil
}

// waitNetworkIdle returns once the navigation identified by loaderID reports
// networkIdle or the load timeout elapses, whichever comes first.
func (e *ChromeEngine) waitNetworkIdle(ctx context.Context, idle <-chan cdp.LoaderID, loaderID cdp.LoaderID) error {
	timer := time.NewTimer(e.loadTimeout)
	defer timer.Stop()

	for {
		select {
		case id := <-idle:
			if id == loaderID {
				return nil
			}
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops the Chrome process.
func (e *ChromeEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.shutdownLocked()
}
