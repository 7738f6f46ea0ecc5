package classify

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

var (
	footnote   = regexp.MustCompile(`\[[^\]]*\]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Classifier evaluates a fixed rule set. It is safe for concurrent use.
type Classifier struct {
	t Tables
}

// New returns a classifier over the given tables.
func New(t Tables) *Classifier {
	return &Classifier{t: t}
}

// Default returns a classifier over DefaultTables.
func Default() *Classifier {
	return New(DefaultTables())
}

// Classify infers (type, country) from the combined text and fact box.
func (c *Classifier) Classify(text string, facts []equipment.Fact) (string, string) {
	return c.Type(text), c.Country(text, facts)
}

// Type returns the known-model type, the first generic category, or "Other".
func (c *Classifier) Type(text string) string {
	if _, ok := first(c.t.KnownModels, text); ok {
		return c.t.KnownModelType
	}
	if label, ok := first(c.t.Types, text); ok {
		return label
	}
	return OtherType
}

// Country matches the country table against text plus serialized facts,
// then falls back to explicit origin facts, then "Unknown".
func (c *Classifier) Country(text string, facts []equipment.Fact) string {
	if label, ok := first(c.t.Countries, text+" "+serialize(facts)); ok {
		return label
	}
	for _, field := range c.t.CountryFields {
		for _, f := range facts {
			if f.Label == field && strings.TrimSpace(f.Value) != "" {
				return c.NormalizeCountry(f.Value)
			}
		}
	}
	return UnknownCountry
}

// Relevant reports whether text describes fielded military equipment. When
// rejected, reason names the exclusion rule or "no_evidence".
func (c *Classifier) Relevant(text string) (bool, string) {
	if label, ok := first(c.t.Exclusions, text); ok {
		return false, label
	}
	matched := ""
	corroborated := false
	for _, r := range c.t.Types {
		if !r.Pattern.MatchString(text) {
			continue
		}
		if matched == "" {
			matched = r.Label
		}
		if r.Label != c.t.TankType {
			corroborated = true
		}
	}
	switch {
	case matched == "":
		return false, "no_evidence"
	case matched != c.t.TankType:
		return true, ""
	}
	if _, ok := first(c.t.KnownModels, text); ok {
		return true, ""
	}
	if corroborated || (c.t.MilitaryEvidence != nil && c.t.MilitaryEvidence.MatchString(text)) {
		return true, ""
	}
	return false, "no_evidence"
}

// Category refines a type into a finer category, falling back to fallback.
func (c *Classifier) Category(text, fallback string) string {
	if label, ok := first(c.t.Categories, text); ok {
		return label
	}
	return fallback
}

// NormalizeCountry strips footnotes and maps known aliases to a canonical
// name.
func (c *Classifier) NormalizeCountry(s string) string {
	s = strings.TrimSpace(whitespace.ReplaceAllString(footnote.ReplaceAllString(s, ""), " "))
	if canonical, ok := c.t.CountryAliases[strings.ToLower(s)]; ok {
		return canonical
	}
	return s
}

// TypeFromURL derives a type hint from a page address, or "".
func (c *Classifier) TypeFromURL(u string) string {
	label, _ := first(c.t.URLTypes, u)
	return label
}

// CountryFromURL derives a country hint from a page address, or "".
func (c *Classifier) CountryFromURL(u string) string {
	label, _ := first(c.t.URLCountries, u)
	return label
}

func first(rules []Rule, text string) (string, bool) {
	for _, r := range rules {
		if r.Pattern.MatchString(text) {
			return r.Label, true
		}
	}
	return "", false
}

func serialize(facts []equipment.Fact) string {
	var b strings.Builder
	for _, f := range facts {
		b.WriteString(f.Label)
		b.WriteString(": ")
		b.WriteString(f.Value)
		b.WriteString("; ")
	}
	return b.String()
}
