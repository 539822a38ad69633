package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0BSoD/cryptonews/internal/model"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Decrypt</title>
  <link>https://decrypt.co</link>
  <description>news</description>
  <item>
    <title> Bitcoin ETF inflows rise </title>
    <link>https://decrypt.co/1/bitcoin-etf-inflows</link>
    <category>Markets</category>
    <description><![CDATA[<p>Inflows <b>rose</b>.</p>]]></description>
    <enclosure url="https://img.decrypt.co/1.jpg" type="image/jpeg" length="10"/>
    <pubDate>Mon, 06 May 2024 10:00:00 +0000</pubDate>
  </item>
  <item>
    <title>Ether slips</title>
    <link>https://decrypt.co/2/ether-slips</link>
    <description>Ether slipped.</description>
    <pubDate>Mon, 06 May 2024 09:00:00 +0000</pubDate>
  </item>
</channel>
</rss>`

func feedServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(testFeed))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRSSSource_Fetch(t *testing.T) {
	srv := feedServer(t)

	src := NewRSSSourceFromModel(model.Source{ID: 3, Name: "decrypt", FeedURL: srv.URL})
	items, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "Bitcoin ETF inflows rise", first.Title)
	assert.Equal(t, "https://decrypt.co/1/bitcoin-etf-inflows", first.Link)
	assert.Equal(t, []string{"Markets"}, first.Categories)
	assert.Equal(t, "https://img.decrypt.co/1.jpg", first.ImageURL)
	assert.Equal(t, "decrypt", first.SourceName)
	assert.Equal(t, "https://decrypt.co", first.SourceURL)
	assert.Contains(t, first.Summary, "Inflows")
	assert.Equal(t, 2024, first.Date.Year())

	assert.Empty(t, items[1].ImageURL)
	assert.Equal(t, int64(3), src.ID())
	assert.Equal(t, "decrypt", src.Name())
}

func TestProbe(t *testing.T) {
	srv := feedServer(t)

	title, err := Probe(context.Background(), srv.URL, false)
	require.NoError(t, err)
	assert.Equal(t, "Decrypt", title)

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer bad.Close()

	_, err = Probe(context.Background(), bad.URL, false)
	assert.Error(t, err)
}
