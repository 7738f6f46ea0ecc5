// Package equipment defines the canonical equipment record and the
// collaborator interfaces shared by the crawl, dedupe and persist stages.
package equipment

import (
	"strings"
	"time"
)

// Record is the canonical structured form every source is mapped into.
type Record struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Category     string   `json:"category"`
	Country      string   `json:"country"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	InService    string   `json:"inService,omitempty"`
	Crew         string   `json:"crew,omitempty"`
	Weight       string   `json:"weight,omitempty"`
	Length       string   `json:"length,omitempty"`
	Width        string   `json:"width,omitempty"`
	Height       string   `json:"height,omitempty"`
	Engine       string   `json:"engine,omitempty"`
	Speed        string   `json:"speed,omitempty"`
	Range        string   `json:"range,omitempty"`
	Armor        string   `json:"armor,omitempty"`
	Armament     []string `json:"armament,omitempty"`
	Description  string   `json:"description,omitempty"`
	ImageURL     string   `json:"imageUrl,omitempty"`
	Year         int      `json:"year,omitempty"`
	Source       string   `json:"source"`
	SourceURL    string   `json:"sourceUrl"`

	// ImageCandidates lists image URLs found on the detail page, best first.
	// It is consumed by the image resolver and never counted or serialized.
	ImageCandidates []string `json:"-"`
}

// Valid reports whether the identity fields are populated.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.Name) != "" &&
		strings.TrimSpace(r.Type) != "" &&
		strings.TrimSpace(r.Country) != ""
}

// Key returns the dedup identity: lower(name) + "_" + lower(country).
func (r Record) Key() string {
	return DedupKey(r.Name, r.Country)
}

// DedupKey builds the identity used to detect duplicate entities.
func DedupKey(name, country string) string {
	return strings.ToLower(name) + "_" + strings.ToLower(country)
}

// PopulatedFields counts non-empty fields, excluding provenance.
func (r Record) PopulatedFields() int {
	n := 0
	for _, v := range []string{
		r.Name, r.Type, r.Category, r.Country, r.Manufacturer, r.InService,
		r.Crew, r.Weight, r.Length, r.Width, r.Height, r.Engine, r.Speed,
		r.Range, r.Armor, r.Description, r.ImageURL,
	} {
		if v != "" {
			n++
		}
	}
	if len(r.Armament) > 0 {
		n++
	}
	if r.Year != 0 {
		n++
	}
	return n
}

// Clone returns a deep copy so later stages never share slices.
func (r Record) Clone() Record {
	cp := r
	cp.Armament = append([]string(nil), r.Armament...)
	cp.ImageCandidates = append([]string(nil), r.ImageCandidates...)
	return cp
}

// Overlay copies every populated field of src onto r and returns the result.
// Provenance comes from src when set.
func (r Record) Overlay(src Record) Record {
	out := r.Clone()
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Name, src.Name)
	set(&out.Type, src.Type)
	set(&out.Category, src.Category)
	set(&out.Country, src.Country)
	set(&out.Manufacturer, src.Manufacturer)
	set(&out.InService, src.InService)
	set(&out.Crew, src.Crew)
	set(&out.Weight, src.Weight)
	set(&out.Length, src.Length)
	set(&out.Width, src.Width)
	set(&out.Height, src.Height)
	set(&out.Engine, src.Engine)
	set(&out.Speed, src.Speed)
	set(&out.Range, src.Range)
	set(&out.Armor, src.Armor)
	set(&out.Description, src.Description)
	set(&out.ImageURL, src.ImageURL)
	set(&out.Source, src.Source)
	set(&out.SourceURL, src.SourceURL)
	if len(src.Armament) > 0 {
		out.Armament = append([]string(nil), src.Armament...)
	}
	if src.Year != 0 {
		out.Year = src.Year
	}
	if len(src.ImageCandidates) > 0 {
		out.ImageCandidates = append([]string(nil), src.ImageCandidates...)
	}
	return out
}

// RawListing is a list-page entry pointing at a detail page.
type RawListing struct {
	Name   string
	URL    string
	Source string
	// Hints carries values read from the list row itself, keyed by field.
	Hints map[string]string
}

// Fact is one label/value pair from a detail page fact box.
type Fact struct {
	Label string
	Value string
}

// FactSheet is everything a detail page contributes to a record.
type FactSheet struct {
	Title       string
	Description string
	Facts       []Fact
	Source      string
	SourceURL   string
	Images      []string
}

// Lookup returns the first fact value whose label equals one of the aliases.
func (s FactSheet) Lookup(aliases ...string) string {
	for _, alias := range aliases {
		for _, f := range s.Facts {
			if f.Label == alias && f.Value != "" {
				return f.Value
			}
		}
	}
	return ""
}

// Options controls a single orchestrated run.
type Options struct {
	Sources    []string `json:"sources,omitempty"`
	MaxItems   int      `json:"maxItems,omitempty"`
	Categories []string `json:"categories,omitempty"`
	DryRun     bool     `json:"dryRun,omitempty"`
}

// OutcomeStatus classifies a persistence attempt.
type OutcomeStatus string

// Persistence outcome values.
const (
	OutcomeSaved   OutcomeStatus = "saved"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeFailed  OutcomeStatus = "failed"
)

// ReasonAlreadyExists marks a record skipped because the repository has it.
const ReasonAlreadyExists = "already_exists"

// Outcome is the persistence result for one record. ImageURL is the image
// address handed to the repository; skipped records leave it empty.
type Outcome struct {
	Name     string        `json:"name"`
	Country  string        `json:"country"`
	Status   OutcomeStatus `json:"status"`
	ID       string        `json:"id,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	ImageURL string        `json:"imageUrl,omitempty"`
}

// PersistSummary aggregates outcomes across all batches. Outcomes are in
// input order.
type PersistSummary struct {
	Saved    int       `json:"saved"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"outcomes,omitempty"`
}

// SourceStats is the per-source breakdown of a run.
type SourceStats struct {
	Items     int  `json:"items"`
	Errors    int  `json:"errors"`
	Reachable bool `json:"reachable"`
}

// ParseResult is handed back to the caller once per run.
type ParseResult struct {
	RunID      string                 `json:"runId,omitempty"`
	Processed  int                    `json:"processed"`
	Success    int                    `json:"success"`
	Failed     int                    `json:"failed"`
	Duplicates int                    `json:"duplicates"`
	Data       []Record               `json:"data"`
	Errors     []string               `json:"errors,omitempty"`
	Persist    *PersistSummary        `json:"persist,omitempty"`
	Sources    map[string]SourceStats `json:"sources,omitempty"`
	Duration   time.Duration          `json:"durationNs"`
}
