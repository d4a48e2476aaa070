package browser

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestPlateauCounter(t *testing.T) {
	p := plateauCounter{stable: 3}

	// Growing counts never plateau.
	assert.False(t, p.observe(5))
	assert.False(t, p.observe(9))

	// Three flat observations in a row stop the loop.
	assert.False(t, p.observe(9))
	assert.False(t, p.observe(9))
	assert.True(t, p.observe(9))
}

func TestPlateauCounter_GrowthResets(t *testing.T) {
	p := plateauCounter{stable: 3}

	assert.False(t, p.observe(4))
	assert.False(t, p.observe(4))
	assert.False(t, p.observe(4))
	// New content arrives just in time: window resets.
	assert.False(t, p.observe(6))
	assert.False(t, p.observe(6))
	assert.False(t, p.observe(6))
	assert.True(t, p.observe(6))
}

func TestCollectImageURLs(t *testing.T) {
	html := `<html><body>
	  <img src="https://cdn.example.com/flyers/monday.jpg">
	  <img src="https://cdn.example.com/flyers/monday.jpg">
	  <img src="/flyers/tuesday.jpg">
	  <img data-src="https://cdn.example.com/flyers/lazy.jpg">
	  <img src="https://cdn.example.com/ui/sprite.png">
	  <img src="https://cdn.example.com/brand/logo.png">
	  <img src="data:image/png;base64,AAAA">
	  <img src="https://cdn.example.com/art/vector.svg">
	</body></html>`

	urls := collectImageURLs(html, mustParse(t, "https://host.example/groups/1"))
	assert.Equal(t, []string{
		"https://cdn.example.com/flyers/monday.jpg",
		"https://host.example/flyers/tuesday.jpg",
		"https://cdn.example.com/flyers/lazy.jpg",
	}, urls)
}

func TestCollectImageURLs_NoBase(t *testing.T) {
	html := `<img src="/relative.jpg"><img src="https://cdn.example.com/a.jpg">`
	// Without a base, relative sources cannot resolve to http and drop out.
	urls := collectImageURLs(html, nil)
	assert.Equal(t, []string{"https://cdn.example.com/a.jpg"}, urls)
}

func TestPageText(t *testing.T) {
	html := `<html><head><style>body { color: red }</style></head><body>
	  <script>trackEverything()</script>
	  <h1>Karaoke   Mondays</h1>
	  <p>Joe's Bar, 8pm</p>

	  <p></p>
	</body></html>`

	text := pageText(html)
	assert.Equal(t, "Karaoke Mondays\nJoe's Bar, 8pm", text)
	assert.NotContains(t, text, "trackEverything")
	assert.NotContains(t, text, "color: red")
}
