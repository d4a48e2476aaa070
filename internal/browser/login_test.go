package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const loginWallHTML = `<html><body>
<h1>Log in to continue</h1>
<form action="/accounts/login" method="post">
  <input type="text" name="username">
  <input type="password" name="password">
  <button type="submit">Log In</button>
</form>
</body></html>`

const contentHTML = `<html><body>
<h1>Karaoke Mondays at Joe's Bar</h1>
<img src="https://cdn.example.com/flyers/monday.jpg">
<p>Every Monday 8pm, hosted by DJ Max.</p>
</body></html>`

func TestLooksLikeLogin(t *testing.T) {
	cases := []struct {
		name string
		html string
		url  string
		want bool
	}{
		{"login form", loginWallHTML, "https://x.example/groups/123", true},
		{"content page", contentHTML, "https://x.example/groups/123", false},
		{"login url alone", contentHTML, "https://x.example/login?next=/groups/123", true},
		{"checkpoint url", contentHTML, "https://x.example/checkpoint/challenge", true},
		{
			// A hidden header form is boilerplate, not a wall.
			"hidden password field",
			`<html><body><div style="display:none">
			   <form><input type="password"></form>
			 </div><p>Show listings</p></body></html>`,
			"https://x.example/shows",
			false,
		},
		{
			// Password input with no login cue anywhere.
			"password without cues",
			`<html><body><input type="password" name="wifi_code"><p>Guest network</p></body></html>`,
			"https://x.example/venue",
			false,
		},
		{"empty page", "", "https://x.example/", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, LooksLikeLogin(tc.html, tc.url))
		})
	}
}

func TestURLLooksLikeLogin(t *testing.T) {
	assert.True(t, urlLooksLikeLogin("https://x.example/signin"))
	assert.True(t, urlLooksLikeLogin("https://x.example/sessions/new"))
	assert.False(t, urlLooksLikeLogin("https://x.example/blogin")) // no substring trap on segment start
	assert.False(t, urlLooksLikeLogin("https://x.example/shows/monday"))
}

func TestLooksBlocked(t *testing.T) {
	assert.True(t, LooksBlocked(`<html><body><h1>Access Denied</h1></body></html>`))
	assert.True(t, LooksBlocked(`<html><body>Checking your browser before accessing example.com</body></html>`))
	assert.False(t, LooksBlocked(contentHTML))
}
