// Package browser drives a headless Chrome session against one scrape
// target: restore cookies, navigate, get past login walls and blocking
// popups, scroll until content plateaus, and hand back extraction targets.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/internal/progress"
	"github.com/showscout/scout-cli/internal/session"
)

// State is where a scrape currently stands. Transitions are linear except
// for the popup loop; terminal states are Ready-derived success or Closed.
type State string

const (
	StateNotLoaded      State = "not_loaded"
	StateLoading        State = "loading"
	StateLoginCheck     State = "login_check"
	StateLoginRequired  State = "login_required"
	StatePopupCheck     State = "popup_check"
	StateContentLoading State = "content_loading"
	StateReady          State = "ready"
	StateExtracting     State = "extracting"
	StateClosed         State = "closed"
)

const (
	defaultNavTimeout = 60 * time.Second
	defaultMaxImages  = 40
	maxPopupRounds    = 3
	maxImageBytes     = 8 << 20
	loginSettleWait   = 3 * time.Second
	navSettleWait     = 2 * time.Second
)

// Metadata is the lightweight page context returned alongside targets.
type Metadata struct {
	Title      string
	PageURL    string
	ImageCount int
}

// ScrapeResult is a successful scrape: the extraction targets found plus
// page metadata.
type ScrapeResult struct {
	Targets  []model.ExtractionTarget
	Metadata Metadata
}

// Driver runs one browser session per Scrape call. It is safe to reuse for
// sequential scrapes; concurrent scrapes need separate Drivers.
type Driver struct {
	headless    bool
	navTimeout  time.Duration
	scroll      ScrollConfig
	chain       *Chain
	rules       *RuleSet
	sess        *session.State
	creds       session.Source
	reporter    progress.Reporter
	fetchImages bool
	httpClient  *http.Client
	maxImages   int

	state State
}

// Option configures a Driver.
type Option func(*Driver)

// WithHeadless toggles headless mode; on by default.
func WithHeadless(headless bool) Option {
	return func(d *Driver) { d.headless = headless }
}

// WithNavigationTimeout bounds the initial navigation.
func WithNavigationTimeout(timeout time.Duration) Option {
	return func(d *Driver) { d.navTimeout = timeout }
}

// WithScrollConfig overrides the scroll loop tuning.
func WithScrollConfig(cfg ScrollConfig) Option {
	return func(d *Driver) { d.scroll = cfg }
}

// WithClassifiers sets the popup classifier chain, highest priority first.
func WithClassifiers(classifiers ...PageClassifier) Option {
	return func(d *Driver) { d.chain = NewChain(classifiers...) }
}

// WithRules overrides the popup dismiss rule set.
func WithRules(rules *RuleSet) Option {
	return func(d *Driver) { d.rules = rules }
}

// WithSession attaches shared authentication state; its cookies are
// applied before first navigation.
func WithSession(sess *session.State) Option {
	return func(d *Driver) { d.sess = sess }
}

// WithCredentialSource sets where the driver asks for credentials when it
// hits a login wall without a valid session.
func WithCredentialSource(src session.Source) Option {
	return func(d *Driver) { d.creds = src }
}

// WithProgress sets the progress reporter.
func WithProgress(r progress.Reporter) Option {
	return func(d *Driver) { d.reporter = r }
}

// WithImageFetching controls whether discovered image URLs are downloaded
// into the targets; on by default.
func WithImageFetching(fetch bool) Option {
	return func(d *Driver) { d.fetchImages = fetch }
}

// WithHTTPClient overrides the client used for image downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(d *Driver) { d.httpClient = c }
}

// WithMaxImages caps how many images one scrape may yield.
func WithMaxImages(n int) Option {
	return func(d *Driver) { d.maxImages = n }
}

// New creates a Driver. Without options it runs headless with the model-
// free selector classifier only.
func New(opts ...Option) *Driver {
	d := &Driver{
		headless:    true,
		navTimeout:  defaultNavTimeout,
		scroll:      DefaultScrollConfig(),
		rules:       DefaultRules(),
		reporter:    progress.Nop{},
		fetchImages: true,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		maxImages:   defaultMaxImages,
		state:       StateNotLoaded,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.chain == nil {
		d.chain = NewChain(NewSelectorClassifier(d.rules))
	}
	return d
}

// CurrentState reports where the last scrape stands.
func (d *Driver) CurrentState() State { return d.state }

func (d *Driver) setState(s State) {
	d.state = s
	zap.L().Debug("browser: state", zap.String("state", string(s)))
}

// Scrape runs the full flow against one URL and returns the extraction
// targets found there. Failures come back as a tagged *Error; Scrape never
// panics out of a page.
func (d *Driver) Scrape(ctx context.Context, rawURL string, kind model.TargetKind) (*ScrapeResult, error) {
	base, err := url.Parse(rawURL)
	if err != nil || base.Scheme == "" {
		return nil, newError(model.ErrNavigation, rawURL, eris.Errorf("invalid target url %q", rawURL))
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()
	defer d.setState(StateClosed)

	sessionRef := uuid.NewString()

	if d.sess != nil {
		if cookies := d.sess.Cookies(); len(cookies) > 0 {
			if err := chromedp.Run(browserCtx, applyCookies(cookies)); err != nil {
				zap.L().Warn("browser: cookie restore failed", zap.Error(err))
			}
		}
	}

	d.setState(StateLoading)
	d.reporter.Publish(progress.Event{Kind: progress.KindPhase, Phase: string(StateLoading), Message: rawURL})

	navCtx, cancelNav := context.WithTimeout(browserCtx, d.navTimeout)
	defer cancelNav()

	var html, loc string
	err = chromedp.Run(navCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(navSettleWait),
		chromedp.Location(&loc),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, d.classifyNavError(rawURL, err)
	}

	if LooksBlocked(html) {
		return nil, newError(model.ErrBlocked, rawURL, eris.New("anti-bot wall detected"))
	}

	d.setState(StateLoginCheck)
	if LooksLikeLogin(html, loc) {
		html, loc, err = d.passLoginWall(browserCtx, loc)
		if err != nil {
			d.setState(StateLoginRequired)
			return nil, newError(model.ErrAuthRequired, rawURL, err)
		}
	}

	d.setState(StatePopupCheck)
	html = d.dismissPopups(browserCtx, html)

	d.setState(StateContentLoading)
	html, err = d.scrollToPlateau(browserCtx, html, base)
	if err != nil {
		return nil, d.classifyNavError(rawURL, err)
	}

	d.setState(StateReady)

	var title string
	if err := chromedp.Run(browserCtx, chromedp.Title(&title)); err != nil {
		zap.L().Debug("browser: title read failed", zap.Error(err))
	}

	d.setState(StateExtracting)
	result := d.buildResult(ctx, rawURL, kind, html, base, sessionRef)
	result.Metadata.Title = strings.TrimSpace(title)
	result.Metadata.PageURL = loc

	zap.L().Info("browser: scrape complete",
		zap.String("url", rawURL),
		zap.String("kind", string(kind)),
		zap.Int("targets", len(result.Targets)),
	)
	return result, nil
}

func (d *Driver) classifyNavError(url string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(model.ErrTimeout, url, err)
	}
	return newError(model.ErrNavigation, url, err)
}

// passLoginWall asks the credential source for a login, fills the form,
// and re-checks. A verified session's cookies are captured into shared
// state so sibling scrapes skip the wall.
func (d *Driver) passLoginWall(ctx context.Context, loginURL string) (html, loc string, err error) {
	if d.creds == nil {
		return "", "", session.ErrNoCredentials
	}

	d.reporter.Publish(progress.Event{Kind: progress.KindCredentialsNeeded, Message: loginURL})
	creds, err := d.creds.Request(ctx, loginURL)
	if err != nil {
		return "", "", err
	}

	err = chromedp.Run(ctx,
		chromedp.SendKeys(`form input[type="email"], form input[name*="user"], form input[type="text"]`,
			creds.Username, chromedp.ByQuery),
		chromedp.SendKeys(`input[type="password"]`, creds.Password, chromedp.ByQuery),
		chromedp.Submit(`input[type="password"]`, chromedp.ByQuery),
		chromedp.Sleep(loginSettleWait),
		chromedp.Location(&loc),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", eris.Wrap(err, "submit login form")
	}

	if LooksLikeLogin(html, loc) {
		return "", "", eris.New("still on login wall after submitting credentials")
	}

	if d.sess != nil {
		cookies, err := readCookies(ctx)
		if err != nil {
			zap.L().Warn("browser: cookie capture failed", zap.Error(err))
		} else if err := d.sess.MarkVerified(cookies, time.Now()); err != nil &&
			!errors.Is(err, session.ErrAlreadyVerified) {
			zap.L().Warn("browser: session verify failed", zap.Error(err))
		}
	}
	return html, loc, nil
}

// dismissPopups runs the classifier chain up to maxPopupRounds times,
// clicking whatever it identifies. Dismissal failure is non-fatal: a page
// we cannot clear is scraped as-is rather than hung on.
func (d *Driver) dismissPopups(ctx context.Context, html string) string {
	for round := 0; round < maxPopupRounds; round++ {
		verdict := d.chain.Classify(ctx, html)
		if !verdict.Actionable() {
			return html
		}

		candidates := []string{verdict.Selector}
		if verdict.Selector == "" {
			candidates = d.rules.DismissSelectors(verdict.Kind)
		}

		if !d.clickFirst(ctx, candidates) {
			zap.L().Warn("browser: could not dismiss popup, continuing",
				zap.String("kind", verdict.Kind))
			return html
		}
		zap.L().Debug("browser: popup dismissed", zap.String("kind", verdict.Kind))

		var refreshed string
		if err := chromedp.Run(ctx,
			chromedp.Sleep(time.Second),
			chromedp.OuterHTML("html", &refreshed, chromedp.ByQuery),
		); err != nil {
			return html
		}
		html = refreshed
	}
	return html
}

// clickFirst tries each selector with a short per-click timeout and
// reports whether any click landed.
func (d *Driver) clickFirst(ctx context.Context, selectors []string) bool {
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		clickCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := chromedp.Run(clickCtx, chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible))
		cancel()
		if err == nil {
			return true
		}
	}
	return false
}

// scrollToPlateau drives the scroll loop: step, settle, recount, stop on
// plateau or cap, then one final jump to the absolute bottom with an
// extended wait for stragglers.
func (d *Driver) scrollToPlateau(ctx context.Context, html string, base *url.URL) (string, error) {
	cfg := d.scroll
	counter := plateauCounter{stable: cfg.StableIterations, last: len(collectImageURLs(html, base))}

	step := fmt.Sprintf("window.scrollBy(0, window.innerHeight * %.2f)", cfg.ViewportFraction)
	for i := 0; i < cfg.MaxIterations; i++ {
		if err := chromedp.Run(ctx,
			chromedp.Evaluate(step, nil),
			chromedp.Sleep(cfg.SettleWait),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		); err != nil {
			return "", err
		}

		count := len(collectImageURLs(html, base))
		d.reporter.Publish(progress.Event{
			Kind: progress.KindItem, Phase: string(StateContentLoading),
			Current: i + 1, Total: cfg.MaxIterations, Message: fmt.Sprintf("%d images", count),
		})
		if counter.observe(count) {
			break
		}
	}

	if err := chromedp.Run(ctx,
		chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight)", nil),
		chromedp.Sleep(cfg.FinalWait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", err
	}
	return html, nil
}

// buildResult turns the settled page into extraction targets: a text
// snapshot for plain pages, per-image targets for photo feeds.
func (d *Driver) buildResult(ctx context.Context, rawURL string, kind model.TargetKind, html string, base *url.URL, sessionRef string) *ScrapeResult {
	result := &ScrapeResult{}

	switch kind {
	case model.KindPage:
		result.Targets = []model.ExtractionTarget{{
			SourceURL:  rawURL,
			Kind:       model.KindPage,
			Text:       pageText(html),
			SessionRef: sessionRef,
		}}

	default: // photo feeds and single photos
		urls := collectImageURLs(html, base)
		if len(urls) > d.maxImages {
			urls = urls[:d.maxImages]
		}
		result.Metadata.ImageCount = len(urls)

		for _, u := range urls {
			target := model.ExtractionTarget{
				SourceURL:  u,
				Kind:       model.KindPhoto,
				SessionRef: sessionRef,
			}
			if d.fetchImages {
				data, mediaType, err := d.fetchImage(ctx, u)
				if err != nil {
					zap.L().Warn("browser: image download failed, skipping",
						zap.String("url", u), zap.Error(err))
					continue
				}
				target.ImageData = data
				target.MediaType = mediaType
			}
			result.Targets = append(result.Targets, target)
		}
	}
	return result
}

func (d *Driver) fetchImage(ctx context.Context, imageURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", eris.Wrap(err, "build image request")
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, "", eris.Wrap(err, "download image")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", eris.Errorf("image download returned %d", resp.StatusCode)
	}
	mediaType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, "", eris.Errorf("unexpected content type %q", mediaType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, "", eris.Wrap(err, "read image body")
	}
	return data, mediaType, nil
}

// applyCookies restores a saved cookie set into the browser before first
// navigation.
func applyCookies(cookies []session.Cookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			p := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithSecure(c.Secure).
				WithHTTPOnly(c.HTTPOnly)
			if !c.Expires.IsZero() {
				epoch := cdp.TimeSinceEpoch(c.Expires)
				p = p.WithExpires(&epoch)
			}
			if err := p.Do(ctx); err != nil {
				return eris.Wrapf(err, "set cookie %s", c.Name)
			}
		}
		return nil
	})
}

// readCookies captures the browser's current cookie jar.
func readCookies(ctx context.Context) ([]session.Cookie, error) {
	var out []session.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			cookie := session.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			}
			if c.Expires > 0 {
				cookie.Expires = time.Unix(int64(c.Expires), 0)
			}
			out = append(out, cookie)
		}
		return nil
	}))
	return out, err
}
