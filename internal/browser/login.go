package browser

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// loginPathPatterns are URL path fragments that only appear on login-gated
// pages. Matching any of them is treated as a login wall regardless of the
// page's DOM.
var loginPathPatterns = []string{
	"/login",
	"/signin",
	"/sign-in",
	"/sign_in",
	"/sessions/new",
	"/accounts/login",
	"/checkpoint",
	"/auth/",
}

// loginCues are call-to-action strings that, together with a password
// field, confirm a login wall.
var loginCues = []string{
	"log in",
	"log into",
	"sign in",
	"login",
}

// LooksLikeLogin reports whether the captured page is a login wall: either
// the URL matches a known login-only path, or the DOM carries a visible
// password field alongside login cues. Signup widgets tucked into a footer
// do not count; a lone password input without any cue is ignored.
func LooksLikeLogin(html, pageURL string) bool {
	if urlLooksLikeLogin(pageURL) {
		return true
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}

	var hasPassword bool
	doc.Find(`input[type="password"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if isHidden(s) {
			return true
		}
		hasPassword = true
		return false
	})
	if !hasPassword {
		return false
	}

	if formActionLooksLikeLogin(doc) {
		return true
	}

	text := strings.ToLower(doc.Text())
	for _, cue := range loginCues {
		if strings.Contains(text, cue) {
			return true
		}
	}
	return false
}

func urlLooksLikeLogin(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	path := strings.ToLower(u.Path)
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	for _, pat := range loginPathPatterns {
		if strings.Contains(path, pat) {
			return true
		}
	}
	return false
}

func formActionLooksLikeLogin(doc *goquery.Document) bool {
	var found bool
	doc.Find("form[action]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		action := strings.ToLower(s.AttrOr("action", ""))
		for _, pat := range loginPathPatterns {
			if strings.Contains(action, strings.Trim(pat, "/")) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// isHidden walks the selection's ancestors looking for static hiding. It
// cannot see computed styles; it only catches inline display:none and the
// hidden attribute, which is enough to skip boilerplate header forms.
func isHidden(s *goquery.Selection) bool {
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, ok := n.Attr("hidden"); ok {
			return true
		}
		style := strings.ReplaceAll(n.AttrOr("style", ""), " ", "")
		if strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden") {
			return true
		}
	}
	return false
}

// blockedMarkers identify anti-bot interstitials and hard blocks. Checked
// against the lowercased page; any hit fails the scrape as Blocked.
var blockedMarkers = []string{
	"access denied",
	"request unsuccessful",
	"you have been blocked",
	"temporarily blocked",
	"unusual traffic from your computer network",
	"verify you are human",
	"checking your browser before accessing",
}

// LooksBlocked reports whether the page is an anti-bot wall rather than
// content.
func LooksBlocked(html string) bool {
	lower := strings.ToLower(html)
	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
