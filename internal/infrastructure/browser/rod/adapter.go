package rod

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"listing-agent/internal/application/port/output"
	"listing-agent/internal/domain/entity"
	"listing-agent/internal/infrastructure/htmlclean"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/ysmood/gson"
)

var _ output.BrowserPort = (*BrowserAdapter)(nil)

const (
	defaultSlowMotion        = 0
	defaultTimeout           = 5 * time.Second
	defaultNavigationTimeout = 30 * time.Second
	defaultMaxCandidates     = 400
	candidateAttr            = "data-pgx-id"
)

var ErrClosed = errors.New("browser adapter is closed")

type BrowserConfig struct {
	Headless                bool
	SlowMotion              time.Duration
	Timeout                 time.Duration
	NavigationTimeout       time.Duration
	NoSandbox               bool
	DevTools                bool
	DisableSecurityFeatures bool
	Stealth                 bool
	BinPath                 string
	ViewportWidth           int
	ViewportHeight          int
	MaxCandidates           int
	ScreenshotMaxWidth      int
}

func DefaultConfig() BrowserConfig {
	return BrowserConfig{
		Headless:           true,
		SlowMotion:         defaultSlowMotion,
		Timeout:            defaultTimeout,
		NavigationTimeout:  defaultNavigationTimeout,
		Stealth:            true,
		ViewportWidth:      1280,
		ViewportHeight:     900,
		MaxCandidates:      defaultMaxCandidates,
		ScreenshotMaxWidth: 1024,
	}
}

// BrowserAdapter owns one Chrome process and one tab.
type BrowserAdapter struct {
	mu       sync.Mutex
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	cfg      BrowserConfig
	closed   bool
}

func NewBrowserAdapter(ctx context.Context, cfg BrowserConfig) (*BrowserAdapter, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}

	l := launcher.New().
		Context(ctx).
		Headless(cfg.Headless).
		Devtools(cfg.DevTools).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain")
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}
	if cfg.DisableSecurityFeatures {
		l = l.Set("disable-web-security").
			Set("allow-running-insecure-content").
			Set("disable-setuid-sandbox")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().
		ControlURL(controlURL).
		SlowMotion(cfg.SlowMotion)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	var page *rod.Page
	if cfg.Stealth {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		_ = browser.Close()
		l.Kill()
		l.Cleanup()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		_ = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:             cfg.ViewportWidth,
			Height:            cfg.ViewportHeight,
			DeviceScaleFactor: 1,
		})
	}

	return &BrowserAdapter{
		browser:  browser,
		launcher: l,
		page:     page,
		cfg:      cfg,
	}, nil
}

func (b *BrowserAdapter) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.closed && b.page != nil
}

// scoped returns the tab bound to ctx with a deadline of d.
func (b *BrowserAdapter) scoped(ctx context.Context, d time.Duration) (*rod.Page, context.CancelFunc, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, func() {}, ErrClosed
	}
	cctx, cancel := context.WithTimeout(ctx, d)
	return b.page.Context(cctx), cancel, nil
}

func (b *BrowserAdapter) Navigate(ctx context.Context, url string) error {
	p, cancel, err := b.scoped(ctx, b.cfg.NavigationTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("wait load: %w", err)
	}
	_ = p.WaitIdle(2 * time.Second)
	return nil
}

func (b *BrowserAdapter) DOMSnapshot(ctx context.Context, maxChars int) (string, error) {
	p, cancel, err := b.scoped(ctx, b.cfg.Timeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	res, err := p.Eval(`() => (document.body || document.documentElement).outerHTML`)
	if err != nil {
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}
	return htmlclean.Truncate(res.Value.Str(), maxChars), nil
}

// candidateScan tags every visible clickable element with a stable
// data-pgx-id and returns them in document order.
const candidateScan = `(max, attr) => {
	const sel = 'a, button, [role="button"], [role="link"], input[type="button"], input[type="submit"], [onclick], [aria-label], li[class*="page"], span[class*="page"]';
	window.__pgxSeq = window.__pgxSeq || 0;
	const out = [];
	const nodes = document.querySelectorAll(sel);
	for (let i = 0; i < nodes.length && out.length < max; i++) {
		const el = nodes[i];
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		if ((rect.width === 0 && rect.height === 0) || style.visibility === 'hidden' || style.display === 'none') {
			continue;
		}
		let id = el.getAttribute(attr);
		if (!id) {
			id = 'pgx-' + (++window.__pgxSeq);
			el.setAttribute(attr, id);
		}
		const cls = typeof el.className === 'string' ? el.className : (el.className && el.className.baseVal) || '';
		out.push({
			id: id,
			index: i,
			text: (el.innerText || el.value || '').replace(/\s+/g, ' ').trim().slice(0, 200),
			href: el.getAttribute('href') || '',
			tag: el.tagName.toLowerCase(),
			class_id: (cls + ' ' + (el.id || '')).trim(),
			label: el.getAttribute('aria-label') || el.getAttribute('title') || el.getAttribute('alt') || el.getAttribute('data-tooltip') || '',
		});
	}
	return out;
}`

type scannedCandidate struct {
	ID      string `json:"id"`
	Index   int    `json:"index"`
	Text    string `json:"text"`
	Href    string `json:"href"`
	Tag     string `json:"tag"`
	ClassID string `json:"class_id"`
	Label   string `json:"label"`
}

func (b *BrowserAdapter) QueryCandidates(ctx context.Context) ([]entity.ElementCandidate, error) {
	p, cancel, err := b.scoped(ctx, b.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	res, err := p.Eval(candidateScan, b.cfg.MaxCandidates, candidateAttr)
	if err != nil {
		return nil, fmt.Errorf("candidate scan failed: %w", err)
	}

	var scanned []scannedCandidate
	if err := res.Value.Unmarshal(&scanned); err != nil {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}

	out := make([]entity.ElementCandidate, 0, len(scanned))
	for _, s := range scanned {
		out = append(out, entity.ElementCandidate{
			ID:      s.ID,
			Index:   s.Index,
			Text:    s.Text,
			Href:    s.Href,
			Tag:     s.Tag,
			ClassID: s.ClassID,
			Label:   s.Label,
		})
	}
	return out, nil
}

// Click reports false without an error when the candidate is no longer
// attached to the page.
func (b *BrowserAdapter) Click(ctx context.Context, candidateID string) (bool, error) {
	if candidateID == "" {
		return false, errors.New("empty candidate id")
	}
	p, cancel, err := b.scoped(ctx, b.cfg.Timeout)
	if err != nil {
		return false, err
	}
	defer cancel()

	els, err := p.Elements(fmt.Sprintf(`[%s=%q]`, candidateAttr, candidateID))
	if err != nil {
		return false, fmt.Errorf("element lookup failed: %w", err)
	}
	if els.Empty() {
		return false, nil
	}
	el := els.First()

	_ = el.ScrollIntoView()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		if _, jsErr := el.Eval(`() => this.click()`); jsErr != nil {
			return false, fmt.Errorf("click failed: %w", errors.Join(err, jsErr))
		}
	}

	_ = p.WaitIdle(2 * time.Second)
	return true, nil
}

func (b *BrowserAdapter) ScrollBy(ctx context.Context, dx, dy int) error {
	p, cancel, err := b.scoped(ctx, b.cfg.Timeout)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := p.Eval(`(dx, dy) => window.scrollBy(dx, dy)`, dx, dy); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	return nil
}

func (b *BrowserAdapter) ScrollToBottom(ctx context.Context) error {
	p, cancel, err := b.scoped(ctx, b.cfg.Timeout)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err := p.Eval(`() => window.scrollTo(0, document.documentElement.scrollHeight || document.body.scrollHeight)`); err != nil {
		return fmt.Errorf("scroll failed: %w", err)
	}
	_ = p.WaitIdle(800 * time.Millisecond)
	return nil
}

func (b *BrowserAdapter) ScrollMetrics(ctx context.Context) (entity.ScrollMetrics, error) {
	p, cancel, err := b.scoped(ctx, b.cfg.Timeout)
	if err != nil {
		return entity.ScrollMetrics{}, err
	}
	defer cancel()

	res, err := p.Eval(`() => ({
		scroll_height: Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight),
		viewport_height: window.innerHeight,
		scroll_y: Math.round(window.scrollY),
	})`)
	if err != nil {
		return entity.ScrollMetrics{}, fmt.Errorf("scroll metrics failed: %w", err)
	}
	return scrollMetrics(res.Value), nil
}

func scrollMetrics(v gson.JSON) entity.ScrollMetrics {
	return entity.ScrollMetrics{
		ScrollHeight:   v.Get("scroll_height").Int(),
		ViewportHeight: v.Get("viewport_height").Int(),
		ScrollY:        v.Get("scroll_y").Int(),
	}
}

func (b *BrowserAdapter) CurrentURL(ctx context.Context) (string, error) {
	info, err := b.info(ctx)
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (b *BrowserAdapter) Title(ctx context.Context) (string, error) {
	info, err := b.info(ctx)
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (b *BrowserAdapter) info(ctx context.Context) (*proto.TargetTargetInfo, error) {
	p, cancel, err := b.scoped(ctx, b.cfg.Timeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	info, err := p.Info()
	if err != nil {
		return nil, fmt.Errorf("page info failed: %w", err)
	}
	return info, nil
}

func (b *BrowserAdapter) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	p, cancel, err := b.scoped(ctx, b.cfg.NavigationTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	imgBytes, err := p.Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	return encodeScreenshot(imgBytes, b.cfg.ScreenshotMaxWidth)
}

// encodeScreenshot downsizes wide captures and re-encodes them as JPEG.
func encodeScreenshot(raw []byte, maxWidth int) (*entity.Screenshot, error) {
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}

	if maxWidth > 0 && img.Bounds().Dx() > maxWidth {
		img = imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(75)); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

func (b *BrowserAdapter) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	if b.browser != nil {
		_ = b.browser.Close()
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
}
