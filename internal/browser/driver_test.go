package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/showscout/scout-cli/internal/model"
)

func TestErrorKind(t *testing.T) {
	err := newError(model.ErrBlocked, "https://x.example", errors.New("wall"))
	assert.Equal(t, model.ErrBlocked, Kind(err))
	assert.Contains(t, err.Error(), "blocked")
	assert.Contains(t, err.Error(), "https://x.example")

	assert.Equal(t, model.ErrNone, Kind(errors.New("plain")))
	assert.Equal(t, model.ErrNone, Kind(nil))
}

func TestClassifyNavError(t *testing.T) {
	d := New()
	assert.Equal(t, model.ErrTimeout, Kind(d.classifyNavError("u", context.DeadlineExceeded)))
	assert.Equal(t, model.ErrNavigation, Kind(d.classifyNavError("u", errors.New("net::ERR_NAME_NOT_RESOLVED"))))
}

func TestScrape_InvalidURL(t *testing.T) {
	d := New()
	_, err := d.Scrape(context.Background(), "not a url", model.KindPage)
	assert.Equal(t, model.ErrNavigation, Kind(err))
}

func TestBuildResult_PageTarget(t *testing.T) {
	d := New(WithImageFetching(false))
	base, _ := url.Parse("https://x.example/venue")

	result := d.buildResult(context.Background(), "https://x.example/venue", model.KindPage,
		`<html><body><h1>Karaoke Tuesdays</h1></body></html>`, base, "sess-1")

	require.Len(t, result.Targets, 1)
	target := result.Targets[0]
	assert.Equal(t, model.KindPage, target.Kind)
	assert.Equal(t, "https://x.example/venue", target.SourceURL)
	assert.Equal(t, "Karaoke Tuesdays", target.Text)
	assert.Equal(t, "sess-1", target.SessionRef)
}

func TestBuildResult_FeedTargets(t *testing.T) {
	d := New(WithImageFetching(false), WithMaxImages(2))
	base, _ := url.Parse("https://x.example/groups/1")

	html := `<html><body>
	  <img src="https://cdn.example.com/f/1.jpg">
	  <img src="https://cdn.example.com/f/2.jpg">
	  <img src="https://cdn.example.com/f/3.jpg">
	</body></html>`

	result := d.buildResult(context.Background(), "https://x.example/groups/1",
		model.KindGroupFeed, html, base, "sess-1")

	require.Len(t, result.Targets, 2) // capped
	assert.Equal(t, 2, result.Metadata.ImageCount)
	assert.Equal(t, model.KindPhoto, result.Targets[0].Kind)
	assert.Equal(t, "https://cdn.example.com/f/1.jpg", result.Targets[0].SourceURL)
	assert.Nil(t, result.Targets[0].ImageData)
}

func TestFetchImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flyer.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg-bytes"))
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	d := New(WithHTTPClient(srv.Client()))

	data, mediaType, err := d.fetchImage(context.Background(), srv.URL+"/flyer.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
	assert.Equal(t, "image/jpeg", mediaType)

	_, _, err = d.fetchImage(context.Background(), srv.URL+"/page.html")
	assert.Error(t, err) // not an image

	_, _, err = d.fetchImage(context.Background(), srv.URL+"/missing.jpg")
	assert.Error(t, err)
}

func TestDriverDefaults(t *testing.T) {
	d := New()
	assert.Equal(t, StateNotLoaded, d.CurrentState())
	assert.True(t, d.headless)
	assert.NotNil(t, d.chain)
	assert.Equal(t, defaultMaxImages, d.maxImages)
}
