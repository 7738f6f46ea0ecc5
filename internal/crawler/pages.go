package crawler

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/equipment-crawler/internal/classify"
	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/extract"
	"github.com/JakeFAU/equipment-crawler/internal/metrics"
	"github.com/JakeFAU/equipment-crawler/internal/source"
)

const defaultListTable = "table.wikitable"

// listColumns names the hint carried by each list-table column after the
// name and country cells.
var listColumns = []string{"manufacturer", "inService", "crew", "weight", "armament"}

type yieldFunc = func(Candidate, error) bool

func (c *Crawler) crawlListPage(ctx context.Context, st *state, src source.Config, page source.ListPage, yield yieldFunc) bool {
	pageURL, err := src.Resolve(page.Path)
	if err != nil {
		return c.pageFailed(st, src, page.Path, err, yield)
	}
	doc, finalURL, err := c.fetchDocument(ctx, src, pageURL, src.Timeout)
	if err != nil {
		return c.pageFailed(st, src, pageURL, err, yield)
	}
	st.success()

	listings := c.listings(doc, src, page, finalURL)
	c.logger.Info("list page parsed",
		zap.String("source", src.Key),
		zap.String("url", pageURL),
		zap.Int("rows", len(listings)),
	)

	urls := make([]string, len(listings))
	for i, l := range listings {
		urls[i] = l.URL
	}
	return c.eachDetail(ctx, src, urls, func(i int, sheet equipment.FactSheet, err error) bool {
		row := c.builder.FromListing(listings[i])
		if err != nil {
			c.logger.Warn("detail page failed, keeping list row",
				zap.String("url", listings[i].URL),
				zap.Error(err),
			)
			c.noteFailure(st, src, err)
			if ok, reason := c.cls.Relevant(row.Name + " " + row.Type + " " + row.Category); !ok {
				return c.emit(src, row, false, reason, yield)
			}
			return c.emit(src, row, true, "", yield)
		}
		st.success()
		detail := c.builder.Build(sheet)
		if ok, reason := c.cls.Relevant(detail.Name + " " + detail.Description); !ok {
			return c.emit(src, detail, false, reason, yield)
		}
		return c.emit(src, mergeDetail(row, detail), true, "", yield)
	})
}

// listings reads list-table rows. The header row, rows with fewer than two
// cells, rows whose first cell has no link and junk names are skipped.
func (c *Crawler) listings(doc *goquery.Document, src source.Config, page source.ListPage, pageURL string) []equipment.RawListing {
	typ := firstNonEmpty(page.Type, c.cls.TypeFromURL(pageURL), classify.OtherType)
	country := firstNonEmpty(page.Country, c.cls.CountryFromURL(pageURL))
	table := firstNonEmpty(src.ListTable, defaultListTable)

	var out []equipment.RawListing
	seen := map[string]bool{}
	doc.Find(table).Each(func(_ int, tbl *goquery.Selection) {
		rows := tbl.Find("tr")
		if rows.Length() < 2 {
			return
		}
		rows.Slice(1, goquery.ToEnd).Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td, th")
			if cells.Length() < 2 {
				return
			}
			first := cells.Eq(0)
			name := extract.Clean(first.Text())
			href, _ := first.Find("a").First().Attr("href")
			if name == "" || href == "" {
				return
			}
			if extract.JunkName(name) {
				c.logger.Debug("skipping junk name", zap.String("name", name))
				return
			}
			link := extract.ResolveURL(pageURL, href)
			if link == "" || seen[link] {
				return
			}
			seen[link] = true

			hints := map[string]string{
				"type":    typ,
				"country": firstNonEmpty(country, extract.Clean(cells.Eq(1).Text()), classify.UnknownCountry),
			}
			for i, key := range listColumns {
				if cell := cells.Eq(i + 2); cell.Length() > 0 {
					hints[key] = extract.Clean(cell.Text())
				}
			}
			out = append(out, equipment.RawListing{Name: name, URL: link, Source: src.Name, Hints: hints})
		})
	})
	return out
}

func (c *Crawler) crawlCategory(ctx context.Context, st *state, src source.Config, cat source.Category, limit int, yield yieldFunc) bool {
	catURL, err := src.Resolve(cat.Path)
	if err != nil {
		return c.pageFailed(st, src, cat.Path, err, yield)
	}
	doc, finalURL, err := c.fetchDocument(ctx, src, catURL, src.Timeout)
	if err != nil {
		return c.pageFailed(st, src, catURL, err, yield)
	}
	st.success()

	links := categoryLinks(doc, src, cat, finalURL)
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}
	c.logger.Info("category page parsed",
		zap.String("source", src.Key),
		zap.String("category", cat.Name),
		zap.Int("links", len(links)),
	)

	return c.eachDetail(ctx, src, links, func(i int, sheet equipment.FactSheet, err error) bool {
		if err != nil {
			return c.pageFailed(st, src, links[i], err, yield)
		}
		st.success()
		rec := c.builder.Build(sheet)
		if ok, reason := c.cls.Relevant(rec.Name + " " + rec.Description); !ok {
			return c.emit(src, rec, false, reason, yield)
		}
		return c.emit(src, rec, true, "", yield)
	})
}

// categoryLinks collects absolute, de-duplicated item links.
func categoryLinks(doc *goquery.Document, src source.Config, cat source.Category, pageURL string) []string {
	sel := cat.Selectors
	if sel.ItemLink == "" {
		sel = src.CategoryDefaults
	}
	scope := doc.Selection
	if sel.Container != "" {
		scope = doc.Find(sel.Container)
	}
	var out []string
	seen := map[string]bool{}
	scope.Find(sel.ItemLink).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" {
			return
		}
		if src.WikiLinks && strings.ContainsAny(href, ":#") {
			return
		}
		link := extract.ResolveURL(pageURL, href)
		if link == "" || seen[link] {
			return
		}
		seen[link] = true
		out = append(out, link)
	})
	return out
}

// eachDetail fetches detail pages in windows of DetailConcurrency and hands
// results to fn in input order. It stops as soon as fn returns false.
func (c *Crawler) eachDetail(ctx context.Context, src source.Config, urls []string, fn func(int, equipment.FactSheet, error) bool) bool {
	n := c.cfg.DetailConcurrency
	for start := 0; start < len(urls); start += n {
		end := min(start+n, len(urls))
		sheets := make([]equipment.FactSheet, end-start)
		errs := make([]error, end-start)

		var g errgroup.Group
		g.SetLimit(n)
		for i := start; i < end; i++ {
			g.Go(func() error {
				sheets[i-start], errs[i-start] = c.fetchDetail(ctx, src, urls[i])
				return nil
			})
		}
		_ = g.Wait()

		for i := start; i < end; i++ {
			if !fn(i, sheets[i-start], errs[i-start]) {
				return false
			}
		}
	}
	return true
}

// pageFailed yields a page error and reports whether crawling continues.
func (c *Crawler) pageFailed(st *state, src source.Config, pageURL string, err error, yield yieldFunc) bool {
	c.logger.Warn("page failed",
		zap.String("source", src.Key),
		zap.String("url", pageURL),
		zap.Error(err),
	)
	metrics.ObserveCandidate(src.Key, "failed")
	c.noteFailure(st, src, err)
	return yield(Candidate{}, &PageError{Source: src.Key, URL: pageURL, Err: err})
}

// noteFailure counts a failed page. A long streak is logged; the remaining
// pages are still crawled.
func (c *Crawler) noteFailure(st *state, src source.Config, err error) {
	if st.failure(err) {
		c.logger.Warn("source failing repeatedly",
			zap.String("source", src.Key),
			zap.Int("consecutive_failures", st.failures),
		)
	}
}

// emit yields one candidate. Accepted records missing identity fields are
// downgraded to rejected.
func (c *Crawler) emit(src source.Config, rec equipment.Record, accepted bool, reason string, yield yieldFunc) bool {
	if accepted && !rec.Valid() {
		accepted, reason = false, "incomplete"
	}
	outcome := "accepted"
	if !accepted {
		outcome = "rejected"
		c.logger.Debug("candidate rejected",
			zap.String("name", rec.Name),
			zap.String("reason", reason),
		)
	}
	metrics.ObserveCandidate(src.Key, outcome)
	return yield(Candidate{
		Record:   rec,
		Source:   src.Key,
		URL:      rec.SourceURL,
		Accepted: accepted,
		Reason:   reason,
	}, nil)
}

// mergeDetail overlays detail-page values on a list row. Unresolved type
// and country from the detail page keep the row's hints.
func mergeDetail(row, detail equipment.Record) equipment.Record {
	out := row.Overlay(detail)
	if detail.Type == classify.OtherType {
		out.Type = row.Type
	}
	if detail.Country == classify.UnknownCountry {
		out.Country = row.Country
	}
	if detail.Category == classify.OtherType {
		out.Category = row.Category
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
