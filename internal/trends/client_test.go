package trends

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripGuard(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"prefix only", ")]}'{\"a\":1}", `{"a":1}`},
		{"prefix with comma", ")]}',\n{\"a\":1}", `{"a":1}`},
		{"prefix with whitespace", ")]}'\n\n{\"a\":1}", `{"a":1}`},
		{"plain json untouched", `{"a":1}`, `{"a":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(stripGuard([]byte(tt.in))))
		})
	}
}

func TestDecodeGuarded(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	require.NoError(t, decodeGuarded([]byte(")]}',\n{\"a\":7}"), &v))
	assert.Equal(t, 7, v.A)

	assert.Error(t, decodeGuarded([]byte(")]}'garbage"), &v))
}

func newTestClient(url string) *Client {
	sources := testSources()
	sources.TrendsAPIURL = url
	return NewClient(newFetchClient(), sources)
}

// exploreKeywords pulls the keyword list out of an explore request.
func exploreKeywords(r *http.Request) []string {
	var payload struct {
		ComparisonItem []comparisonItem `json:"comparisonItem"`
	}
	_ = json.Unmarshal([]byte(r.URL.Query().Get("req")), &payload)
	out := make([]string, 0, len(payload.ComparisonItem))
	for _, item := range payload.ComparisonItem {
		out = append(out, item.Keyword)
	}
	return out
}

func TestInterestOverTimeSingleBatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/explore":
			fmt.Fprint(w, ")]}'{\"widgets\":["+
				"{\"id\":\"TIMESERIES\",\"token\":\"tok-1\",\"request\":{\"any\":1}},"+
				"{\"id\":\"RELATED_QUERIES\",\"token\":\"tok-2\",\"request\":{}}]}")
		case "/widgetdata/multiline":
			assert.Equal(t, "tok-1", r.URL.Query().Get("token"), "widget token must be echoed back")
			fmt.Fprint(w, ")]}',\n{\"default\":{\"timelineData\":["+
				"{\"value\":[10,20]},{\"value\":[20,40]},{\"value\":[30,60]}]}}")
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	results := c.InterestOverTime(context.Background(), []string{"alpha", "beta"}, "TR", TimeframeLastHour)
	require.Len(t, results, 2)

	// beta has the higher latest index and sorts first.
	assert.Equal(t, "beta", results[0].Keyword)
	assert.Equal(t, 60, results[0].LatestIndex)
	assert.Equal(t, 40.0, results[0].Avg60m)
	assert.Equal(t, 40.0, results[0].Avg20m)
	assert.Equal(t, 0.0, results[0].Delta20m, "short series compare against themselves")
	assert.Equal(t, []int{20, 40, 60}, results[0].Points)

	assert.Equal(t, "alpha", results[1].Keyword)
	assert.Equal(t, 30, results[1].LatestIndex)
	assert.Equal(t, 20.0, results[1].Avg60m)
}

func TestInterestOverTimeBatchFailureIsolated(t *testing.T) {
	var exploreCalls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/explore":
			exploreCalls++
			if len(exploreKeywords(r)) == interestBatchSize {
				// First batch of eight fails outright.
				http.Error(w, "quota", http.StatusTooManyRequests)
				return
			}
			fmt.Fprint(w, ")]}'{\"widgets\":[{\"id\":\"TIMESERIES\",\"token\":\"t\",\"request\":{}}]}")
		case "/widgetdata/multiline":
			fmt.Fprint(w, ")]}'{\"default\":{\"timelineData\":[{\"value\":[5,9]}]}}")
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	keywords := make([]string, 10)
	for i := range keywords {
		keywords[i] = fmt.Sprintf("kw%02d", i)
	}

	c := newTestClient(ts.URL)
	results := c.InterestOverTime(context.Background(), keywords, "TR", TimeframeLastHour)

	assert.Equal(t, 2, exploreCalls, "ten keywords split into batches of eight and two")
	require.Len(t, results, 10, "failed batch keywords still appear")

	withData := 0
	for _, r := range results {
		if len(r.Points) > 0 {
			withData++
		} else {
			assert.Equal(t, 0, r.LatestIndex)
		}
	}
	assert.Equal(t, 2, withData, "only the surviving batch carries data")
}

func TestInterestOverTimeMissingWidget(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ")]}'{\"widgets\":[{\"id\":\"RELATED_QUERIES\",\"token\":\"t\",\"request\":{}}]}")
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	results := c.InterestOverTime(context.Background(), []string{"alpha"}, "TR", TimeframeLastHour)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Points)
}

func TestInterestOverTimeWidgetWithoutToken(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/explore", r.URL.Path, "a tokenless widget must not be queried")
		fmt.Fprint(w, ")]}'{\"widgets\":[{\"id\":\"TIMESERIES\",\"token\":\"\",\"request\":{}}]}")
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	results := c.InterestOverTime(context.Background(), []string{"alpha"}, "TR", TimeframeLastHour)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Points)
}

func TestRelatedQueries(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/explore":
			fmt.Fprint(w, ")]}'{\"widgets\":[{\"id\":\"RELATED_QUERIES\",\"token\":\"rq\",\"request\":{\"k\":1}}]}")
		case "/widgetdata/relatedsearches":
			assert.Equal(t, "rq", r.URL.Query().Get("token"))
			fmt.Fprint(w, ")]}',\n{\"default\":{\"rankedList\":["+
				"{\"rankedKeyword\":[{\"query\":\"dolar kuru bugün\",\"value\":100,\"formattedValue\":\"100\",\"link\":\"/x\"}]},"+
				"{\"rankedKeyword\":[{\"query\":\" yeni vergi \",\"value\":4400,\"formattedValue\":\"Breakout\"},{\"query\":\"\",\"value\":1}]}]}}")
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	c.now = func() time.Time { return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) }

	got, err := c.RelatedQueries(context.Background(), "dolar", "TR", TimeframeLastHour)
	require.NoError(t, err)

	assert.Equal(t, "dolar", got.Keyword)
	assert.Equal(t, time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC), got.GeneratedAt)

	require.Len(t, got.Top, 1)
	assert.Equal(t, "dolar kuru bugün", got.Top[0].Query)
	assert.Equal(t, 100, got.Top[0].Value)

	require.Len(t, got.Rising, 1, "blank queries are dropped")
	assert.Equal(t, "yeni vergi", got.Rising[0].Query, "queries are trimmed")
	assert.Equal(t, "Breakout", got.Rising[0].FormattedValue)
}

func TestRelatedQueriesMissingWidget(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, ")]}'{\"widgets\":[]}")
	}))
	defer ts.Close()

	c := newTestClient(ts.URL)
	got, err := c.RelatedQueries(context.Background(), "dolar", "TR", TimeframeLastHour)
	require.NoError(t, err)
	assert.Empty(t, got.Top)
	assert.Empty(t, got.Rising)
}

func TestSummarizeSeriesAggregates(t *testing.T) {
	// 60 points ramping 1..60: head mean 10.5, tail mean 50.5.
	points := make([]int, 60)
	for i := range points {
		points[i] = i + 1
	}
	got := summarizeSeries("kw", points)

	assert.Equal(t, 60, got.LatestIndex)
	assert.Equal(t, 30.5, got.Avg60m)
	assert.Equal(t, 50.5, got.Avg20m)
	assert.Equal(t, 40.0, got.Delta20m)
}

func TestSummarizeSeriesEmpty(t *testing.T) {
	got := summarizeSeries("kw", nil)
	assert.Equal(t, "kw", got.Keyword)
	assert.Equal(t, 0, got.LatestIndex)
	assert.NotNil(t, got.Points)
}

func TestInterestCacheKey(t *testing.T) {
	a := InterestCacheKey([]string{"Dolar", "  altın  ", "borsa"})
	b := InterestCacheKey([]string{"borsa", "altın", "dolar"})
	assert.Equal(t, a, b, "key is order-independent over normalized keywords")
	assert.Equal(t, "altın|borsa|dolar", a)
}

func TestRelatedCacheKey(t *testing.T) {
	assert.Equal(t, "dolar kuru|TR|now 1-H", RelatedCacheKey("  Dolar   Kuru ", "TR", TimeframeLastHour))
}
