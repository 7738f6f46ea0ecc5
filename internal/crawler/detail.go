package crawler

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/extract"
	"github.com/JakeFAU/equipment-crawler/internal/source"
)

var errNoTitle = errors.New("detail page has no title")

// fetchDetail loads a detail page into a fact sheet.
func (c *Crawler) fetchDetail(ctx context.Context, src source.Config, rawURL string) (equipment.FactSheet, error) {
	doc, finalURL, err := c.fetchDocument(ctx, src, rawURL, src.DetailFetchTimeout())
	if err != nil {
		return equipment.FactSheet{}, err
	}
	sheet, err := parseDetail(doc, src, finalURL)
	if err != nil {
		return equipment.FactSheet{}, fmt.Errorf("parse detail: %w", err)
	}
	sheet.SourceURL = rawURL
	return sheet, nil
}

// parseDetail reads title, lead paragraph, fact rows and image candidates.
func parseDetail(doc *goquery.Document, src source.Config, pageURL string) (equipment.FactSheet, error) {
	sel := src.Detail
	title := extract.Clean(doc.Find(sel.Title).First().Text())
	if title == "" {
		return equipment.FactSheet{}, errNoTitle
	}
	sheet := equipment.FactSheet{
		Title:     title,
		Source:    src.Name,
		SourceURL: pageURL,
	}
	if sel.Description != "" {
		doc.Find(sel.Description).EachWithBreak(func(_ int, p *goquery.Selection) bool {
			sheet.Description = extract.Clean(p.Text())
			return sheet.Description == ""
		})
	}
	if sel.FactRow != "" {
		doc.Find(sel.FactRow).Each(func(_ int, row *goquery.Selection) {
			label := extract.Clean(row.Find(sel.FactLabel).First().Text())
			values := row.Find(sel.FactValue)
			value := values.First()
			if sel.FactValueLast {
				value = values.Last()
			}
			v := extract.Clean(value.Text())
			if label == "" || v == "" || label == v {
				return
			}
			sheet.Facts = append(sheet.Facts, equipment.Fact{Label: label, Value: v})
		})
	}
	sheet.Images = imageCandidates(doc, pageURL, sel.InfoboxImage, sel.GalleryImage, sel.ContentImage)
	return sheet, nil
}

// imageCandidates returns the first image of each selector, in selector
// priority order, as absolute URLs without duplicates.
func imageCandidates(doc *goquery.Document, pageURL string, selectors ...string) []string {
	var out []string
	seen := map[string]bool{}
	for _, sel := range selectors {
		if sel == "" {
			continue
		}
		src, ok := doc.Find(sel).First().Attr("src")
		if !ok {
			continue
		}
		abs := extract.ResolveURL(pageURL, src)
		if abs == "" || seen[abs] {
			continue
		}
		seen[abs] = true
		out = append(out, abs)
	}
	return out
}
