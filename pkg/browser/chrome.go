package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type ChromeOptions struct {
	ExecPath  string
	Headless  bool
	UserAgent string
}

// ChromeFactory opens one tab per session inside a single headless Chrome.
type ChromeFactory struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        zerolog.Logger
}

func NewChromeFactory(opts ChromeOptions, logger zerolog.Logger) (*ChromeFactory, error) {
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-background-timer-throttling", true),
		chromedp.Flag("disable-renderer-backgrounding", true),
		chromedp.UserAgent(opts.UserAgent),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run on the browser context starts Chrome.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("starting chrome: %w", err)
	}

	logger.Info().Bool("headless", opts.Headless).Msg("Chrome started")
	return &ChromeFactory{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
	}, nil
}

func (f *ChromeFactory) NewSession(ctx context.Context) (Session, error) {
	tabCtx, cancel := chromedp.NewContext(f.browserCtx)
	s := &chromeSession{ctx: tabCtx, cancel: cancel}
	if err := s.run(ctx, network.Enable()); err != nil {
		cancel()
		return nil, fmt.Errorf("opening tab: %w", err)
	}
	return s, nil
}

func (f *ChromeFactory) Close() error {
	err := chromedp.Cancel(f.browserCtx)
	f.browserCancel()
	f.allocCancel()
	return err
}

type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes actions on the tab, abandoning them when the caller's ctx
// ends without closing the tab itself.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (s *chromeSession) Navigate(ctx context.Context, url string, headers map[string]string) error {
	actions := make([]chromedp.Action, 0, 2)
	if len(headers) > 0 {
		h := make(network.Headers, len(headers))
		for k, v := range headers {
			h[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(h))
	}
	actions = append(actions, chromedp.Navigate(url))
	return s.run(ctx, actions...)
}

func (s *chromeSession) WaitVisible(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromeSession) Text(ctx context.Context, selector string) (string, error) {
	var text string
	expr := fmt.Sprintf(`(document.querySelector(%s)?.textContent || '').trim()`, jsString(selector))
	if err := s.run(ctx, chromedp.Evaluate(expr, &text)); err != nil {
		return "", err
	}
	if text == "" {
		return "", ErrNoMatch
	}
	return text, nil
}

func (s *chromeSession) FirstHref(ctx context.Context, selectors []string) (string, error) {
	quoted := make([]string, len(selectors))
	for i, sel := range selectors {
		quoted[i] = jsString(sel)
	}
	expr := fmt.Sprintf(`(() => {
		for (const sel of [%s]) {
			const el = document.querySelector(sel);
			if (el && el.href) return el.href;
		}
		return '';
	})()`, strings.Join(quoted, ","))

	var href string
	if err := s.run(ctx, chromedp.Evaluate(expr, &href)); err != nil {
		return "", err
	}
	if href == "" {
		return "", ErrNoMatch
	}
	return href, nil
}

func (s *chromeSession) Reset(ctx context.Context) error {
	return s.run(ctx,
		network.SetExtraHTTPHeaders(network.Headers{}),
		network.ClearBrowserCookies(),
		chromedp.Navigate("about:blank"),
	)
}

func (s *chromeSession) Close() error {
	s.cancel()
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
