// Package extract maps detail-page fact boxes and list-table rows into the
// canonical equipment record.
package extract

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/JakeFAU/equipment-crawler/internal/classify"
	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

// Label aliases, most specific first.
var (
	manufacturerLabels = []string{"manufacturer", "designed by", "designer"}
	inServiceLabels    = []string{"in service", "service"}
	crewLabels         = []string{"crew"}
	weightLabels       = []string{"weight", "mass"}
	lengthLabels       = []string{"length"}
	widthLabels        = []string{"width"}
	heightLabels       = []string{"height"}
	engineLabels       = []string{"engine", "powerplant"}
	speedLabels        = []string{"maximum speed", "speed"}
	rangeLabels        = []string{"range", "operational range"}
	armorLabels        = []string{"armor", "armour"}
	armamentLabels     = []string{"main armament", "armament", "primary armament"}
	yearLabels         = []string{"in service", "service", "introduced", "introduction", "first flight", "produced", "production"}
)

var (
	footnote    = regexp.MustCompile(`\[[^\]]*\]`)
	whitespace  = regexp.MustCompile(`\s+`)
	yearToken   = regexp.MustCompile(`\b(\d{4})s?\b`)
	armamentSep = regexp.MustCompile(`[,;]`)
)

var junkNames = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(test|example|sample|placeholder)`),
	regexp.MustCompile(`(?i)^(image|photo|picture|fig\.|figure)`),
	regexp.MustCompile(`(?i)^(click|here|more|see|view)\b`),
	regexp.MustCompile(`^[\d\s\-_.]+$`),
	regexp.MustCompile(`(?i)^(unknown|n/a|tbd|tba)\b`),
}

// Builder turns fact sheets into records. It never fails on missing fields.
type Builder struct {
	cls   *classify.Classifier
	clock equipment.Clock
}

// New returns a Builder. A nil clock uses the wall clock.
func New(cls *classify.Classifier, clock equipment.Clock) *Builder {
	if cls == nil {
		cls = classify.Default()
	}
	return &Builder{cls: cls, clock: clock}
}

// Classifier exposes the rule set the builder classifies with.
func (b *Builder) Classifier() *classify.Classifier {
	return b.cls
}

// Build maps a detail page into a record and classifies it.
func (b *Builder) Build(sheet equipment.FactSheet) equipment.Record {
	norm := NormalizeFacts(sheet.Facts)
	sheet.Facts = norm

	name := Clean(sheet.Title)
	desc := Clean(sheet.Description)
	text := name + " " + desc
	typ, country := b.cls.Classify(text, norm)

	rec := equipment.Record{
		Name:         name,
		Type:         typ,
		Category:     b.cls.Category(text, typ),
		Country:      country,
		Manufacturer: sheet.Lookup(manufacturerLabels...),
		InService:    sheet.Lookup(inServiceLabels...),
		Crew:         sheet.Lookup(crewLabels...),
		Weight:       sheet.Lookup(weightLabels...),
		Length:       sheet.Lookup(lengthLabels...),
		Width:        sheet.Lookup(widthLabels...),
		Height:       sheet.Lookup(heightLabels...),
		Engine:       sheet.Lookup(engineLabels...),
		Speed:        sheet.Lookup(speedLabels...),
		Range:        sheet.Lookup(rangeLabels...),
		Armor:        sheet.Lookup(armorLabels...),
		Armament:     SplitArmament(sheet.Lookup(armamentLabels...)),
		Description:  desc,
		Source:       sheet.Source,
		SourceURL:    sheet.SourceURL,
	}
	var yearSources []string
	for _, label := range yearLabels {
		yearSources = append(yearSources, sheet.Lookup(label))
	}
	rec.Year = b.Year(yearSources...)
	if len(sheet.Images) > 0 {
		rec.ImageCandidates = append([]string(nil), sheet.Images...)
		rec.ImageURL = sheet.Images[0]
	}
	return rec
}

// FromListing builds a row-only record from a list-table entry. Type and
// country come from the listing hints.
func (b *Builder) FromListing(l equipment.RawListing) equipment.Record {
	h := l.Hints
	typ := h["type"]
	if typ == "" {
		typ = classify.OtherType
	}
	country := b.cls.NormalizeCountry(h["country"])
	if country == "" {
		country = classify.UnknownCountry
	}
	rec := equipment.Record{
		Name:         Clean(l.Name),
		Type:         typ,
		Category:     typ,
		Country:      country,
		Manufacturer: Clean(h["manufacturer"]),
		InService:    Clean(h["inService"]),
		Crew:         Clean(h["crew"]),
		Weight:       Clean(h["weight"]),
		Armament:     SplitArmament(h["armament"]),
		Source:       l.Source,
		SourceURL:    l.URL,
	}
	rec.Year = b.Year(rec.InService)
	return rec
}

// Year returns the first four-digit token in [1900, current year] across
// the values in order, or 0. A decade such as "1980s" counts as its first
// year.
func (b *Builder) Year(values ...string) int {
	now := time.Now()
	if b.clock != nil {
		now = b.clock.Now()
	}
	for _, v := range values {
		for _, m := range yearToken.FindAllStringSubmatch(v, -1) {
			y, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			if y >= 1900 && y <= now.Year() {
				return y
			}
		}
	}
	return 0
}

// SplitArmament splits on commas and semicolons, trimming and dropping
// empty items.
func SplitArmament(s string) []string {
	var out []string
	for _, part := range armamentSep.Split(s, -1) {
		if part = Clean(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// NormalizeLabel lowercases, strips footnote markers and collapses
// whitespace.
func NormalizeLabel(s string) string {
	s = strings.ToLower(Clean(s))
	return strings.TrimSpace(strings.TrimSuffix(s, ":"))
}

// NormalizeFacts returns facts with normalised labels and cleaned values.
// Facts with an empty label or value are dropped.
func NormalizeFacts(facts []equipment.Fact) []equipment.Fact {
	out := make([]equipment.Fact, 0, len(facts))
	for _, f := range facts {
		label, value := NormalizeLabel(f.Label), Clean(f.Value)
		if label == "" || value == "" {
			continue
		}
		out = append(out, equipment.Fact{Label: label, Value: value})
	}
	return out
}

// Clean strips footnote markers and collapses whitespace.
func Clean(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(footnote.ReplaceAllString(s, ""), " "))
}

// JunkName reports whether a listing name is navigation noise rather than
// an item.
func JunkName(name string) bool {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) < 3 {
		return true
	}
	for _, re := range junkNames {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// ResolveURL resolves ref against base. Protocol-relative references get
// https. Non-http(s) results resolve to "".
func ResolveURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "//") {
		ref = "https:" + ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if !r.IsAbs() {
		b, err := url.Parse(base)
		if err != nil {
			return ""
		}
		r = b.ResolveReference(r)
	}
	if r.Scheme != "http" && r.Scheme != "https" {
		return ""
	}
	r.Fragment = ""
	return r.String()
}
