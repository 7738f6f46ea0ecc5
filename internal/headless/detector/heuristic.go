// Package detector decides when a statically fetched page should be
// re-rendered with a headless browser.
package detector

import (
	"bytes"
	"strings"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

// DefaultBodyThreshold is the size below which a script-heavy page is
// treated as an unrendered shell.
const DefaultBodyThreshold = 2048

var defaultMarkers = []string{
	"__next",
	`id="root"`,
	`id="app"`,
	"data-reactroot",
	"ng-version",
	"please enable javascript",
	"you need to enable javascript",
}

// Heuristic flags single-page-app shells and script-only bodies.
type Heuristic struct {
	BodyLengthThreshold int
	markers             [][]byte
}

// NewHeuristic creates a detector. Extra markers are matched
// case-insensitively in addition to the built-in ones.
func NewHeuristic(threshold int, extraMarkers ...string) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultBodyThreshold
	}
	h := &Heuristic{BodyLengthThreshold: threshold}
	for _, m := range append(append([]string(nil), defaultMarkers...), extraMarkers...) {
		if m = strings.TrimSpace(m); m != "" {
			h.markers = append(h.markers, []byte(strings.ToLower(m)))
		}
	}
	return h
}

// ShouldPromote reports whether the response looks like it needs
// JavaScript to show its content. Only successful HTML responses qualify.
func (h *Heuristic) ShouldPromote(resp equipment.FetchResponse) bool {
	if resp.StatusCode != 200 || resp.UsedHeadless {
		return false
	}
	if ct := resp.ContentType(); ct != "" && !strings.Contains(strings.ToLower(ct), "html") {
		return false
	}
	if len(resp.Body) == 0 {
		return true
	}
	lower := bytes.ToLower(resp.Body)
	if len(lower) < h.BodyLengthThreshold && scriptShare(lower) >= 25 {
		return true
	}
	for _, marker := range h.markers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scriptShare returns the percentage of the lowercased body covered by
// <script> elements. Unterminated tags run to the end of the body.
func scriptShare(body []byte) int {
	total := len(body)
	if total == 0 {
		return 0
	}
	openTag, closeTag := []byte("<script"), []byte("</script>")
	covered, pos := 0, 0
	for pos < total {
		rel := bytes.Index(body[pos:], openTag)
		if rel < 0 {
			break
		}
		start := pos + rel
		end := total
		if gt := bytes.IndexByte(body[start:], '>'); gt >= 0 {
			contentStart := start + gt + 1
			if closeRel := bytes.Index(body[contentStart:], closeTag); closeRel >= 0 {
				end = contentStart + closeRel + len(closeTag)
			}
		}
		covered += end - start
		pos = end
	}
	return covered * 100 / total
}
