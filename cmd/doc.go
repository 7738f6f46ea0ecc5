// Package cmd implements the equipment-crawler command line.
//
// Architecture overview:
//   - Sources: internal/source holds the built-in source definitions (list pages, categories, selectors,
//     politeness settings); config overrides can enable, disable or retune them.
//   - Crawl: internal/crawler walks list pages first and category pages second, fetching each detail page through
//     the colly fetcher (robots.txt aware) or, for sources that need it, the chromedp headless fetcher. Requests to
//     one host are spaced by the per-host rate limiter.
//   - Classification: internal/classify and internal/extract turn page text into canonical records; candidates
//     that are not fielded military equipment are dropped.
//   - Pipeline: internal/pipeline bounds the run by the item budget, deduplicates by name and country, then hands
//     survivors to internal/persist, which re-hosts images (memory/local/GCS), inserts into Postgres or memory in
//     throttled batches and publishes a Pub/Sub notification per insert.
//   - Observability: zap logs, Prometheus metrics, an OpenTelemetry span per run (exported to Cloud Trace when a
//     project is configured) and live run events batched by internal/progress for the status endpoint.
//   - Surfaces: `parse` runs once and prints the result, `serve` exposes the same run over HTTP with status,
//     health and Prometheus metrics; `sources` lists the effective source registry.
//
// Configuration comes from an optional file plus EQUIPMENT_* environment variables (see internal/config).
package cmd
