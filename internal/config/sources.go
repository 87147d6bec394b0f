package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Sources describes the upstream endpoints and locale parameters. Keeping
// them in a file rather than in code makes it possible to point the tracker
// at another market without a rebuild.
type Sources struct {
	Locale struct {
		HL   string `yaml:"hl"`   // e.g. "tr-TR"
		GL   string `yaml:"gl"`   // e.g. "TR"
		Ceid string `yaml:"ceid"` // e.g. "TR:tr"
		Geo  string `yaml:"geo"`  // e.g. "TR"
		TZ   string `yaml:"tz"`   // minutes offset, e.g. "-180"
	} `yaml:"locale"`

	NewsFeedURL     string `yaml:"news_feed_url"`
	TrendingFeedURL string `yaml:"trending_feed_url"`
	TrendsAPIURL    string `yaml:"trends_api_url"`

	// Formatted values that mark a related query as a breakout in the
	// configured locale.
	BreakoutLabels []string `yaml:"breakout_labels"`
}

// LoadSources reads the sources list from a YAML file.
func LoadSources(path string) (Sources, error) {
	var s Sources

	f, err := os.Open(path)
	if err != nil {
		return s, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&s); err != nil {
		return s, err
	}
	return s, nil
}
