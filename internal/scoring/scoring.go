// Package scoring computes the relevance score and trend signal for one
// article within a scan cycle.
package scoring

import (
	"math"
	"strings"
	"time"

	"github.com/deusflow/trendhunter/internal/textutil"
)

// Score rates an article from 0 to 100 and reports whether its title matched
// a currently trending phrase. density is the number of articles returned for
// the same keyword in this cycle and acts as a burst-of-coverage proxy.
//
// The terms:
//   - recency: 45 points fading linearly, gone after ~12.9 hours
//   - keyword in title: +20
//   - trending phrase match: +25 and the signal flag
//   - density: 2 points per article, capped at 20
func Score(now time.Time, title, keyword string, publishedAt time.Time, trending []string, density int) (int, bool) {
	ageHours := now.Sub(publishedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}

	titleNorm := textutil.Normalize(title)
	keywordNorm := textutil.Normalize(keyword)

	score := 0
	signal := false

	// Floor the whole expression, not just the product: at 1h the term is
	// floor(41.5) = 41, not 45 - 3 = 42.
	recency := int(math.Floor(45 - ageHours*3.5))
	if recency < 0 {
		recency = 0
	}
	score += recency

	if keywordNorm != "" && strings.Contains(titleNorm, keywordNorm) {
		score += 20
	}

	if matchesTrending(titleNorm, trending) {
		score += 25
		signal = true
	}

	densityBoost := density * 2
	if densityBoost > 20 {
		densityBoost = 20
	}
	score += densityBoost

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score, signal
}

// matchesTrending reports whether any trending phrase hits the normalized
// title. A phrase hits when it appears whole, or when one of its words longer
// than 4 characters appears. Short words match too many titles by accident
// ("için", "daha"), so they are skipped. The first hit wins.
func matchesTrending(titleNorm string, trending []string) bool {
	for _, phrase := range trending {
		if phrase == "" {
			continue
		}
		if strings.Contains(titleNorm, phrase) {
			return true
		}
		for _, word := range strings.Split(phrase, " ") {
			if len(word) > 4 && strings.Contains(titleNorm, word) {
				return true
			}
		}
	}
	return false
}
