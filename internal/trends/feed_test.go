package trends

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trendingDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0"><channel>
  <title>Daily Search Trends</title>
  <item><title>Büyük Deprem</title></item>
  <item><title>  </title></item>
  <item><title>dolar kuru</title></item>
  <item><title>Galatasaray   Fenerbahçe</title></item>
</channel></rss>`

func TestParseTrending(t *testing.T) {
	got, err := ParseTrending([]byte(trendingDoc), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"büyük deprem", "dolar kuru", "galatasaray fenerbahçe"}, got,
		"titles come back normalized, blanks skipped")
}

func TestParseTrendingTruncates(t *testing.T) {
	got, err := ParseTrending([]byte(trendingDoc), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"büyük deprem", "dolar kuru"}, got)
}

func TestParseTrendingMalformed(t *testing.T) {
	_, err := ParseTrending([]byte("{not a feed}"), 10)
	assert.Error(t, err)
}
