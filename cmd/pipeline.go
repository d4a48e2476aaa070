package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/showscout/scout-cli/internal/browser"
	"github.com/showscout/scout-cli/internal/extract"
	"github.com/showscout/scout-cli/internal/model"
	"github.com/showscout/scout-cli/internal/progress"
	"github.com/showscout/scout-cli/internal/resilience"
	"github.com/showscout/scout-cli/internal/session"
	"github.com/showscout/scout-cli/pkg/anthropic"
	"github.com/showscout/scout-cli/pkg/geocode"
)

// newEngine builds the extraction engine from config.
func newEngine() *extract.Engine {
	client := anthropic.NewClient(cfg.Anthropic.Key)
	return extract.NewEngine(client,
		extract.WithModel(cfg.Anthropic.Model),
		extract.WithMaxTokens(cfg.Anthropic.MaxTokens),
		extract.WithRetry(retryConfig()),
	)
}

// newGeocoder builds the geocoding oracle client. Census needs no key;
// the Google fallback activates only when one is configured.
func newGeocoder() geocode.Client {
	opts := []geocode.Option{
		geocode.WithRateLimit(cfg.Geocode.RateLimitRPS),
		geocode.WithCacheTTL(time.Duration(cfg.Geocode.CacheTTLHours) * time.Hour),
	}
	if cfg.Geocode.GoogleKey != "" {
		opts = append(opts, geocode.WithGoogleAPIKey(cfg.Geocode.GoogleKey))
	}
	return geocode.NewClient(opts...)
}

// newDriver builds the browser driver from config. The engine powers the
// model-based popup classifier, tried before the selector rules.
func newDriver(engine *extract.Engine, sess *session.State, src session.Source, reporter progress.Reporter) *browser.Driver {
	opts := []browser.Option{
		browser.WithHeadless(cfg.Browser.Headless),
		browser.WithNavigationTimeout(cfg.Browser.NavTimeout()),
		browser.WithScrollConfig(scrollConfig()),
		browser.WithImageFetching(cfg.Browser.FetchImages),
		browser.WithMaxImages(cfg.Browser.MaxImages),
	}
	if engine != nil {
		opts = append(opts, browser.WithClassifiers(
			browser.NewModelClassifier(engine),
			browser.NewSelectorClassifier(nil),
		))
	}
	if sess != nil {
		opts = append(opts, browser.WithSession(sess))
	}
	if src != nil {
		opts = append(opts, browser.WithCredentialSource(src))
	}
	if reporter != nil {
		opts = append(opts, browser.WithProgress(reporter))
	}
	return browser.New(opts...)
}

func retryConfig() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialBackoff: time.Duration(cfg.Retry.InitialBackoffMS) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffSecs) * time.Second,
		Multiplier:     cfg.Retry.Multiplier,
		JitterFraction: cfg.Retry.JitterFraction,
	}
}

func scrollConfig() browser.ScrollConfig {
	return browser.ScrollConfig{
		ViewportFraction: cfg.Browser.ViewportFraction,
		MaxIterations:    cfg.Browser.MaxScrolls,
		StableIterations: cfg.Browser.StableScrolls,
		SettleWait:       time.Duration(cfg.Browser.SettleWaitMS) * time.Millisecond,
		FinalWait:        time.Duration(cfg.Browser.FinalWaitSecs) * time.Second,
	}
}

// promptFor picks the extraction prompt matching a target's payload.
func promptFor(target model.ExtractionTarget) model.PromptKind {
	if target.Kind == model.KindPage {
		return model.PromptShowText
	}
	return model.PromptShowImage
}

// siteKey reduces a URL to the host used as the session cookie key.
func siteKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// loadSession restores saved cookies for a site, if any.
func loadSession(cookiesJSON []byte) *session.State {
	if len(cookiesJSON) == 0 {
		return session.NewState(nil)
	}

	var cookies []session.Cookie
	if err := json.Unmarshal(cookiesJSON, &cookies); err != nil {
		zap.L().Warn("discarding unreadable saved session", zap.Error(err))
		return session.NewState(nil)
	}
	return session.NewState(cookies)
}

// printEvents renders progress events to stderr until the bus closes.
func printEvents(bus *progress.Bus) {
	for ev := range bus.Events() {
		switch ev.Kind {
		case progress.KindPhase:
			fmt.Fprintf(os.Stderr, "==> %s\n", ev.Message)
		case progress.KindItem:
			fmt.Fprintf(os.Stderr, "    [%d/%d] %s\n", ev.Current, ev.Total, ev.Message)
		case progress.KindWarning:
			fmt.Fprintf(os.Stderr, "    warning: %s\n", ev.Message)
		case progress.KindCredentialsNeeded:
			fmt.Fprintf(os.Stderr, "    login required: %s\n", ev.Message)
		}
	}
}

// answerCredentialRequests reads login prompts from stdin for the
// interactive credential source. Runs until the context backing src ends.
func answerCredentialRequests(src *session.Interactive) {
	reader := bufio.NewReader(os.Stdin)
	for req := range src.Requests {
		fmt.Fprintf(os.Stderr, "Login required for %s\n", req.LoginURL)
		fmt.Fprint(os.Stderr, "Username: ")
		user, err := reader.ReadString('\n')
		if err != nil {
			close(req.Reply)
			return
		}
		fmt.Fprint(os.Stderr, "Password: ")
		pass, err := reader.ReadString('\n')
		if err != nil {
			close(req.Reply)
			return
		}
		req.Reply <- session.Credentials{
			Username: strings.TrimSpace(user),
			Password: strings.TrimSpace(pass),
		}
	}
}
