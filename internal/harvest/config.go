package harvest

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Mode selects which traversal controller drives the run.
type Mode string

// Traversal modes.
const (
	ModeOffset Mode = "offset"
	ModeScroll Mode = "scroll"
)

// Config captures every knob that influences a harvest run. All values
// originate from Viper so runs can be configured via file, env vars, or CLI
// flags. The struct is immutable for the run's lifetime.
type Config struct {
	Run     RunConfig     `mapstructure:"run"`
	Offset  OffsetConfig  `mapstructure:"offset"`
	Scroll  ScrollConfig  `mapstructure:"scroll"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Cards   CardSelectors `mapstructure:"cards"`
	Extract ExtractConfig `mapstructure:"extract"`
	Output  OutputConfig  `mapstructure:"output"`
	Dedup   DedupConfig   `mapstructure:"dedup"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// RunConfig identifies the record stream being produced.
type RunConfig struct {
	Publisher string `mapstructure:"publisher"`
	Label     int    `mapstructure:"label"`
}

// OffsetConfig drives the numbered-page traversal.
type OffsetConfig struct {
	PageURL        string `mapstructure:"page_url"`
	StartPage      int    `mapstructure:"start_page"`
	EndPage        int    `mapstructure:"end_page"`
	CrossPageDedup bool   `mapstructure:"cross_page_dedup"`
}

// ScrollConfig drives the single-page load-more traversal.
type ScrollConfig struct {
	StartURL  string `mapstructure:"start_url"`
	LoadMore  string `mapstructure:"load_more"`
	Sentinel  string `mapstructure:"sentinel"`
	SettleMs  int    `mapstructure:"settle_ms"`
	PollMs    int    `mapstructure:"poll_ms"`
	MaxRounds int    `mapstructure:"max_rounds"`
}

// FetchConfig bounds the concurrent detail-fetch pipeline.
type FetchConfig struct {
	Concurrency   int     `mapstructure:"concurrency"`
	DelayBaseMs   int     `mapstructure:"delay_base_ms"`
	DelayJitterMs int     `mapstructure:"delay_jitter_ms"`
	NavTimeoutMs  int     `mapstructure:"nav_timeout_ms"`
	Renderer      string  `mapstructure:"renderer"`
	UserAgent     string  `mapstructure:"user_agent"`
	DomainQPS     float64 `mapstructure:"domain_qps"`
}

// ExtractConfig holds the selector chains for the bundled extractor. Each
// value is a comma-separated fallback chain tried in order.
type ExtractConfig struct {
	Marker   string `mapstructure:"marker"`
	Headline string `mapstructure:"headline"`
	Date     string `mapstructure:"date"`
	Category string `mapstructure:"category"`
	Content  string `mapstructure:"content"`
}

// OutputConfig fixes the on-disk layout: stem.jsonl and stem.csv under dir.
type OutputConfig struct {
	Dir  string `mapstructure:"dir"`
	Stem string `mapstructure:"stem"`
	BOM  bool   `mapstructure:"bom"`
}

// DedupConfig enables the optional cross-run bbolt store.
type DedupConfig struct {
	StorePath string `mapstructure:"store_path"`
}

// MetricsConfig enables the optional Prometheus listener.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// LoadConfig builds a Config from disk and environment.
func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Every key gets a default, even if only the zero value, so that
	// AutomaticEnv can surface overrides through Unmarshal.
	v.SetDefault("run.publisher", "")
	v.SetDefault("run.label", 0)
	v.SetDefault("offset.page_url", "")
	v.SetDefault("offset.start_page", 1)
	v.SetDefault("offset.end_page", 0)
	v.SetDefault("offset.cross_page_dedup", false)
	v.SetDefault("scroll.start_url", "")
	v.SetDefault("scroll.load_more", "")
	v.SetDefault("scroll.sentinel", "")
	v.SetDefault("scroll.settle_ms", 2500)
	v.SetDefault("scroll.poll_ms", 250)
	v.SetDefault("scroll.max_rounds", 200)
	v.SetDefault("fetch.concurrency", 12)
	v.SetDefault("fetch.delay_base_ms", 400)
	v.SetDefault("fetch.delay_jitter_ms", 300)
	v.SetDefault("fetch.nav_timeout_ms", 30000)
	v.SetDefault("fetch.renderer", "chromedp")
	v.SetDefault("fetch.user_agent", "article-harvester/1.0 (+https://github.com/openfactlab/article-harvester)")
	v.SetDefault("fetch.domain_qps", 0)
	v.SetDefault("cards.card", "article")
	v.SetDefault("cards.link", "a")
	v.SetDefault("cards.headline", "")
	v.SetDefault("cards.category", "")
	v.SetDefault("cards.date", "")
	v.SetDefault("extract.marker", "")
	v.SetDefault("extract.headline", "")
	v.SetDefault("extract.date", "")
	v.SetDefault("extract.category", "")
	v.SetDefault("extract.content", "")
	v.SetDefault("output.dir", "data")
	v.SetDefault("output.stem", "articles")
	v.SetDefault("output.bom", false)
	v.SetDefault("dedup.store_path", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", false)
}

// Validate checks the knobs required by the given traversal mode.
func (c Config) Validate(mode Mode) error {
	if c.Run.Publisher == "" {
		return fmt.Errorf("run.publisher must be set")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be > 0")
	}
	if c.Fetch.DelayBaseMs < 0 || c.Fetch.DelayJitterMs < 0 {
		return fmt.Errorf("fetch delays must be >= 0")
	}
	if c.Fetch.NavTimeoutMs <= 0 {
		return fmt.Errorf("fetch.nav_timeout_ms must be > 0")
	}
	if c.Fetch.Renderer != "chromedp" && c.Fetch.Renderer != "http" {
		return fmt.Errorf("fetch.renderer must be %q or %q", "chromedp", "http")
	}
	if c.Cards.Card == "" || c.Cards.Link == "" {
		return fmt.Errorf("cards.card and cards.link must be set")
	}
	if c.Output.Dir == "" || c.Output.Stem == "" {
		return fmt.Errorf("output.dir and output.stem must be set")
	}

	switch mode {
	case ModeOffset:
		if c.Offset.PageURL == "" || !strings.Contains(c.Offset.PageURL, "%d") {
			return fmt.Errorf("offset.page_url must contain a %%d page placeholder")
		}
		if c.Offset.StartPage <= 0 {
			return fmt.Errorf("offset.start_page must be > 0")
		}
		if c.Offset.EndPage < c.Offset.StartPage {
			return fmt.Errorf("offset.end_page must be >= offset.start_page")
		}
	case ModeScroll:
		if c.Scroll.StartURL == "" {
			return fmt.Errorf("scroll.start_url must be set")
		}
		if c.Scroll.LoadMore == "" || c.Scroll.Sentinel == "" {
			return fmt.Errorf("scroll.load_more and scroll.sentinel must be set")
		}
		if c.Scroll.MaxRounds <= 0 {
			return fmt.Errorf("scroll.max_rounds must be > 0")
		}
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	return nil
}

// DelayBase is the politeness delay base as a duration.
func (c FetchConfig) DelayBase() time.Duration {
	return time.Duration(c.DelayBaseMs) * time.Millisecond
}

// DelayJitter is the politeness jitter bound as a duration.
func (c FetchConfig) DelayJitter() time.Duration {
	return time.Duration(c.DelayJitterMs) * time.Millisecond
}

// NavTimeout is the navigation timeout as a duration.
func (c FetchConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutMs) * time.Millisecond
}

// Settle is the post-click settle interval as a duration.
func (c ScrollConfig) Settle() time.Duration {
	return time.Duration(c.SettleMs) * time.Millisecond
}

// Poll is the sentinel poll interval as a duration.
func (c ScrollConfig) Poll() time.Duration {
	return time.Duration(c.PollMs) * time.Millisecond
}
