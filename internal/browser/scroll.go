package browser

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ScrollConfig tunes the plateau-detected scroll loop.
type ScrollConfig struct {
	// ViewportFraction is how far each step scrolls, as a fraction of the
	// viewport height.
	ViewportFraction float64

	// MaxIterations is the hard cap on scroll steps.
	MaxIterations int

	// StableIterations is how many consecutive steps may pass without the
	// image count growing before the loop stops.
	StableIterations int

	// SettleWait is the pause after each step for lazy content to load.
	SettleWait time.Duration

	// FinalWait is the extended pause after the closing scroll-to-bottom.
	FinalWait time.Duration
}

// DefaultScrollConfig returns the standard scroll tuning.
func DefaultScrollConfig() ScrollConfig {
	return ScrollConfig{
		ViewportFraction: 0.8,
		MaxIterations:    30,
		StableIterations: 3,
		SettleWait:       1500 * time.Millisecond,
		FinalWait:        5 * time.Second,
	}
}

// plateauCounter detects when successive scroll steps stop surfacing new
// content.
type plateauCounter struct {
	stable    int
	last      int
	unchanged int
}

// observe records a step's item count and reports whether the loop has
// plateaued. Any growth resets the stability window.
func (p *plateauCounter) observe(count int) bool {
	if count > p.last {
		p.last = count
		p.unchanged = 0
		return false
	}
	p.unchanged++
	return p.unchanged >= p.stable
}

// chromeImagePatterns filter out site furniture that is never flyer
// content.
var chromeImagePatterns = []string{
	"sprite",
	"icon",
	"emoji",
	"logo",
	"avatar",
	"profile_pic",
	"spacer",
	"pixel",
}

// collectImageURLs extracts the distinct content image URLs from a page,
// in document order. Relative sources are resolved against base; inline
// data URIs, vector assets and obvious site furniture are skipped.
func collectImageURLs(html string, base *url.URL) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		if src == "" {
			src = s.AttrOr("data-src", "")
		}
		resolved := resolveImageURL(src, base)
		if resolved == "" || seen[resolved] {
			return
		}
		seen[resolved] = true
		out = append(out, resolved)
	})

	return out
}

func resolveImageURL(src string, base *url.URL) string {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}

	u, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}

	lower := strings.ToLower(u.String())
	if strings.HasSuffix(u.Path, ".svg") {
		return ""
	}
	for _, pat := range chromeImagePatterns {
		if strings.Contains(lower, pat) {
			return ""
		}
	}
	return u.String()
}

// pageText flattens a page to the text the extraction engine sees: scripts
// and styles removed, whitespace collapsed line by line.
func pageText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	doc.Find("script, style, noscript").Remove()

	raw := doc.Find("body").Text()
	if raw == "" {
		raw = doc.Text()
	}

	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		lines = append(lines, strings.Join(fields, " "))
	}
	return strings.Join(lines, "\n")
}
