package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<html><body>
<ul class="breadcrumb--component"><li><a href="/ekonomia">Ekonomia</a></li></ul>
<h1 class="articleTitle">Eksport rośnie trzeci rok z rzędu</h1>
<div class="article--subtitle">Polski eksport bije kolejne rekordy</div>
<span id="livePublishedAtContainer">15.03.2025 09:30</span>
<picture><img src="/foto/eksport.webp"/></picture>
<p class="article--media--lead">Port w Gdańsku</p>
<p class="image--author">Foto: PAP</p>
<div class="author"><p class="name"><a href="/autor/jan">Jan Kowalski</a></p></div>
<div class="article--content mx-auto my-0">
  <p>Pierwszy akapit treści artykułu.</p>
  <figure><figcaption><p>podpis pod zdjęciem</p></figcaption></figure>
  <p>Drugi akapit treści artykułu.</p>
</div>
</body></html>`

const blogPage = `<html><body>
<h1 class="blog--title">Relacja na żywo</h1>
<div class="blog--subtitle">Minuta po minucie</div>
<div class="blog--image"><img src="https://cdn.rp.pl/live.jpg"/></div>
<div class="blog--content"><p>Wpis pierwszy.</p><p>Wpis drugi.</p></div>
</body></html>`

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	e, err := New("https://www.rp.pl")
	require.NoError(t, err)
	return e
}

func TestExtract_ArticleLayout(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	draft, err := e.Extract([]byte(articlePage), "https://www.rp.pl/ekonomia/art42380421-eksport")
	require.NoError(t, err)

	assert.Equal(t, "https://www.rp.pl/ekonomia/art42380421-eksport", draft.SourceURL)
	assert.Equal(t, "Eksport rośnie trzeci rok z rzędu", draft.Title)
	assert.Equal(t, "Polski eksport bije kolejne rekordy", draft.Subtitle)
	assert.Equal(t, time.Date(2025, 3, 15, 9, 30, 0, 0, time.UTC), draft.PublishedAt)
	assert.Equal(t, []string{"Jan Kowalski"}, draft.Authors)
	assert.Equal(t, "https://www.rp.pl/foto/eksport.webp", draft.ImageURL)
	assert.Equal(t, []string{"Port w Gdańsku", "Foto: PAP"}, draft.ImageCredits)
	assert.Equal(t, "Pierwszy akapit treści artykułu.\n\nDrugi akapit treści artykułu.", draft.BodyText)
}

func TestExtract_BlogLayout(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	draft, err := e.Extract([]byte(blogPage), "https://www.rp.pl/wydarzenia/art99-relacja")
	require.NoError(t, err)

	assert.Equal(t, "Relacja na żywo", draft.Title)
	assert.Equal(t, "Minuta po minucie", draft.Subtitle)
	assert.Equal(t, "https://cdn.rp.pl/live.jpg", draft.ImageURL)
	assert.Equal(t, "Wpis pierwszy.\n\nWpis drugi.", draft.BodyText)
}

func TestExtract_MissingTitle(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	page := `<html><body><div class="article--content"><p>tekst</p></div></body></html>`
	_, err := e.Extract([]byte(page), "https://www.rp.pl/art1")
	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ReasonMissingTitle, extractErr.Reason)
}

func TestExtract_MissingBody(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	page := `<html><body><h1 class="articleTitle">Tytuł bez treści</h1></body></html>`
	_, err := e.Extract([]byte(page), "https://www.rp.pl/art2")
	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ReasonMissingBody, extractErr.Reason)
}

func TestExtract_UnrecognizedLayout(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	page := `<html><body><div class="totally-different"><h2>cos innego</h2></div></body></html>`
	_, err := e.Extract([]byte(page), "https://www.rp.pl/art3")
	var extractErr *Error
	require.ErrorAs(t, err, &extractErr)
	assert.Equal(t, ReasonUnrecognizedLayout, extractErr.Reason)
}

func TestArticleLinks(t *testing.T) {
	t.Parallel()
	e := newTestExtractor(t)

	page := `<html><body>
	<a href="/ekonomia/art42380421-eksport">Eksport</a>
	<a href="https://www.rp.pl/biznes/art100-fuzja">Fuzja</a>
	<a href="/ekonomia/art42380421-eksport">duplikat</a>
	<a href="/ekonomia/art42380421-eksport#komentarze">duplikat z fragmentem</a>
	<a href="/regulamin/art5">regulamin</a>
	<a href="/ekonomia/zdjecie.jpg">obrazek</a>
	<a href="/rss/ekonomia">rss</a>
	<a href="https://inny-serwis.pl/art77">obcy serwis</a>
	<a href="/ekonomia/przeglad">bez id artykułu</a>
	</body></html>`

	links, err := e.ArticleLinks([]byte(page))
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://www.rp.pl/ekonomia/art42380421-eksport",
		"https://www.rp.pl/biznes/art100-fuzja",
	}, links)
}
