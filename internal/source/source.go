// Package source holds the static per-source crawl configuration: base
// address, list pages, category paths, selector rules and rate limits.
package source

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// HeadlessMode selects when a source is rendered with a headless browser.
type HeadlessMode string

// Headless modes.
const (
	HeadlessNever  HeadlessMode = "never"
	HeadlessAuto   HeadlessMode = "auto"
	HeadlessAlways HeadlessMode = "always"
)

// Config describes one source. It is immutable once the registry is built.
type Config struct {
	Key        string        `mapstructure:"key"`
	Name       string        `mapstructure:"name"`
	BaseURL    string        `mapstructure:"base_url"`
	Enabled    bool          `mapstructure:"enabled"`
	MaxRetries int           `mapstructure:"max_retries"`
	Delay      time.Duration `mapstructure:"delay"`
	Timeout    time.Duration `mapstructure:"timeout"`
	// DetailTimeout bounds detail page fetches; zero falls back to Timeout.
	DetailTimeout time.Duration `mapstructure:"detail_timeout"`
	Headless      HeadlessMode  `mapstructure:"headless"`
	// PerCategoryCap spreads the item budget evenly across categories.
	PerCategoryCap bool `mapstructure:"per_category_cap"`
	// WikiLinks drops namespaced (":") and fragment ("#") links.
	WikiLinks bool       `mapstructure:"wiki_links"`
	ListPages []ListPage `mapstructure:"list_pages"`
	// ListTable selects the tables read on list pages.
	ListTable  string          `mapstructure:"list_table"`
	Categories []Category      `mapstructure:"categories"`
	Detail     DetailSelectors `mapstructure:"detail"`
	// CategoryDefaults applies to ad-hoc categories requested by name.
	CategoryDefaults Selectors `mapstructure:"category_defaults"`
}

// ListPage is a table-style page listing many items. Empty Type or Country
// are derived from the page address.
type ListPage struct {
	Path    string `mapstructure:"path"`
	Type    string `mapstructure:"type"`
	Country string `mapstructure:"country"`
}

// Category is an index page linking to detail pages of one expected type.
type Category struct {
	Name      string    `mapstructure:"name"`
	Path      string    `mapstructure:"path"`
	Type      string    `mapstructure:"type"`
	Selectors Selectors `mapstructure:"selectors"`
}

// Selectors are CSS selector rules for category pages. ItemLink is looked
// up inside Container when one is set.
type Selectors struct {
	Container string `mapstructure:"container"`
	ItemLink  string `mapstructure:"item_link"`
}

// DetailSelectors locate the fact box, lead paragraph and images on a
// detail page.
type DetailSelectors struct {
	Title       string `mapstructure:"title"`
	Description string `mapstructure:"description"`
	FactRow     string `mapstructure:"fact_row"`
	FactLabel   string `mapstructure:"fact_label"`
	FactValue   string `mapstructure:"fact_value"`
	// FactValueLast reads the value from the last matching cell.
	FactValueLast bool   `mapstructure:"fact_value_last"`
	InfoboxImage  string `mapstructure:"infobox_image"`
	GalleryImage  string `mapstructure:"gallery_image"`
	ContentImage  string `mapstructure:"content_image"`
}

// Validate checks for obviously bad source definitions.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Key) == "" {
		return fmt.Errorf("source key is required")
	}
	if c.Name == "" {
		return fmt.Errorf("source %s: name is required", c.Key)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source %s: base_url must be absolute", c.Key)
	}
	if c.Delay < 0 {
		return fmt.Errorf("source %s: delay must be >= 0", c.Key)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("source %s: timeout must be > 0", c.Key)
	}
	switch c.Headless {
	case "", HeadlessNever, HeadlessAuto, HeadlessAlways:
	default:
		return fmt.Errorf("source %s: unknown headless mode %q", c.Key, c.Headless)
	}
	if c.Detail.Title == "" {
		return fmt.Errorf("source %s: detail.title selector is required", c.Key)
	}
	return nil
}

// Resolve turns a path or absolute address into an absolute URL on the source.
func (c Config) Resolve(ref string) (string, error) {
	base, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	rel, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse reference %q: %w", ref, err)
	}
	return base.ResolveReference(rel).String(), nil
}

// DetailFetchTimeout returns the timeout used for detail pages.
func (c Config) DetailFetchTimeout() time.Duration {
	if c.DetailTimeout > 0 {
		return c.DetailTimeout
	}
	return c.Timeout
}

// Host returns the hostname of the base address.
func (c Config) Host() string {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// MatchCategories returns the configured categories selected by the
// requested names or paths, preserving configured order. Requests that match
// nothing come back as ad-hoc categories using CategoryDefaults.
func (c Config) MatchCategories(requested []string) []Category {
	if len(requested) == 0 {
		return append([]Category(nil), c.Categories...)
	}
	var out []Category
	matched := make(map[string]bool, len(requested))
	for _, cat := range c.Categories {
		for _, want := range requested {
			if strings.EqualFold(want, cat.Name) || strings.EqualFold(want, cat.Path) {
				out = append(out, cat)
				matched[strings.ToLower(want)] = true
				break
			}
		}
	}
	for _, want := range requested {
		want = strings.TrimSpace(want)
		if want == "" || matched[strings.ToLower(want)] {
			continue
		}
		out = append(out, Category{
			Name:      want,
			Path:      c.adHocPath(want),
			Selectors: c.CategoryDefaults,
		})
	}
	return out
}

func (c Config) adHocPath(want string) string {
	if strings.HasPrefix(want, "/") || strings.Contains(want, "://") {
		return want
	}
	if c.WikiLinks {
		return "/wiki/" + strings.ReplaceAll(want, " ", "_")
	}
	return "/" + want
}
