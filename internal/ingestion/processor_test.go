package ingestion

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<html><head><title>Klinik Sehat | DBD</title><script>var x = 1;</script></head>
<body>
<nav><a href="/">Beranda</a></nav>
<article>
  <h1>Demam Berdarah Dengue</h1>
  <p>Demam berdarah disebabkan oleh virus dengue yang ditularkan nyamuk Aedes aegypti.</p>
  <p>Gejala demam berdarah meliputi demam tinggi, nyeri otot, dan bintik merah pada kulit.</p>
  <ul><li>Segera ke dokter bila demam lebih dari tiga hari.</li></ul>
</article>
<footer>Hak cipta</footer>
</body></html>`

type stubSummarizer struct {
	summary string
	err     error
	calls   int
}

func (s *stubSummarizer) Summarize(ctx context.Context, content string) (string, error) {
	s.calls++
	return s.summary, s.err
}

func TestProcessHTML(t *testing.T) {
	article, err := NewProcessor(nil).ProcessHTML(context.Background(), "https://klinik.example/dbd", articleHTML)
	require.NoError(t, err)

	assert.Equal(t, "Demam Berdarah Dengue", article.Title)
	assert.Contains(t, article.Content, "virus dengue")
	assert.Contains(t, article.Content, "Segera ke dokter")
	assert.NotContains(t, article.Content, "Beranda")
	assert.NotContains(t, article.Content, "Hak cipta")
	assert.NotContains(t, article.Content, "var x")
	assert.Equal(t, "https://klinik.example/dbd", article.SourceURL)

	require.NotEmpty(t, article.Keywords)
	assert.LessOrEqual(t, len(article.Keywords), DefaultMaxKeywords)
	for _, kw := range article.Keywords {
		assert.Equal(t, strings.ToLower(kw), kw)
		assert.GreaterOrEqual(t, len(kw), 3)
	}
}

func TestProcessHTMLEmpty(t *testing.T) {
	_, err := NewProcessor(nil).ProcessHTML(context.Background(), "", "<html><body><script>1</script></body></html>")
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestProcessHTMLSummarizesLongArticles(t *testing.T) {
	long := "<html><body><p>" + strings.Repeat("Vaksinasi anak penting untuk kekebalan. ", 200) + "</p></body></html>"

	ok := &stubSummarizer{summary: "Vaksinasi melindungi anak."}
	article, err := NewProcessor(ok).ProcessHTML(context.Background(), "", long)
	require.NoError(t, err)
	assert.Equal(t, "Vaksinasi melindungi anak.", article.Content)
	assert.Equal(t, 1, ok.calls)

	failing := &stubSummarizer{err: errors.New("circuit breaker is open")}
	article, err = NewProcessor(failing).ProcessHTML(context.Background(), "", long)
	require.NoError(t, err)
	assert.Greater(t, len(article.Content), summarizeAbove)
}

func TestExtractKeywords(t *testing.T) {
	keywords := ExtractKeywords("Demam tinggi pada anak. Demam dan batuk pada anak.", 2)
	assert.LessOrEqual(t, len(keywords), 2)

	assert.Empty(t, ExtractKeywords("apa itu", 5))
}

func TestTokenCountsFallback(t *testing.T) {
	counts := tokenCounts("Demam demam demam. Batuk batuk. Pilek, apa itu?")
	assert.Equal(t, map[string]int{"demam": 3, "batuk": 2, "pilek": 1}, counts)
}
