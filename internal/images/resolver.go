// Package images validates candidate images for a record and re-hosts the
// first acceptable one in blob storage.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/extract"
	"github.com/JakeFAU/equipment-crawler/internal/metrics"
)

// ErrImageRejected is returned when a candidate is not an image or is too small.
var ErrImageRejected = errors.New("image rejected")

// Defaults applied by New.
const (
	DefaultMinBytes      = 10240
	DefaultSearchResults = 3
	DefaultTimeout       = 15 * time.Second
	// QueryToken is replaced with the escaped search query in SearchURL.
	QueryToken = "{query}"
)

// Config tunes validation and the fallback search.
type Config struct {
	// MinBytes is the smallest Content-Length accepted.
	MinBytes int64
	// SearchURL is the fallback image search address containing QueryToken.
	// Empty disables the fallback.
	SearchURL     string
	SearchResults int
	Timeout       time.Duration
}

// Resolver turns image candidates into a hosted image URL.
type Resolver struct {
	cfg     Config
	fetcher equipment.Fetcher
	store   equipment.BlobStore
	logger  *zap.Logger
}

// New builds a Resolver. fetcher must support HEAD requests.
func New(cfg Config, fetcher equipment.Fetcher, store equipment.BlobStore, logger *zap.Logger) *Resolver {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = DefaultMinBytes
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = DefaultSearchResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{cfg: cfg, fetcher: fetcher, store: store, logger: logger.Named("images")}
}

// Resolve returns the hosted URL of the first acceptable image for rec, or
// "" when none could be hosted. Failures are logged, never returned.
func (r *Resolver) Resolve(ctx context.Context, rec equipment.Record) string {
	candidates := rec.ImageCandidates
	if len(candidates) == 0 && rec.ImageURL != "" {
		candidates = []string{rec.ImageURL}
	}
	if hosted := r.first(ctx, rec.Name, candidates); hosted != "" {
		return hosted
	}
	if hosted := r.first(ctx, rec.Name, r.search(ctx, rec)); hosted != "" {
		return hosted
	}
	metrics.ObserveImage("missing")
	r.logger.Debug("no usable image", zap.String("name", rec.Name))
	return ""
}

func (r *Resolver) first(ctx context.Context, name string, candidates []string) string {
	for _, candidate := range candidates {
		hosted, err := r.host(ctx, name, candidate)
		if err == nil {
			metrics.ObserveImage("uploaded")
			return hosted
		}
		if errors.Is(err, ErrImageRejected) {
			metrics.ObserveImage("rejected")
		} else {
			metrics.ObserveImage("failed")
		}
		r.logger.Warn("image candidate failed",
			zap.String("name", name),
			zap.String("url", candidate),
			zap.Error(err),
		)
	}
	return ""
}

func (r *Resolver) host(ctx context.Context, name, imageURL string) (string, error) {
	contentType, err := r.Validate(ctx, imageURL)
	if err != nil {
		return "", err
	}
	resp, err := r.fetcher.Fetch(ctx, equipment.FetchRequest{URL: imageURL, Method: http.MethodGet, Timeout: r.cfg.Timeout})
	if err != nil {
		return "", fmt.Errorf("download image: %w", err)
	}
	if len(resp.Body) == 0 {
		return "", fmt.Errorf("download image: %w: empty body", ErrImageRejected)
	}
	if ct := resp.ContentType(); ct != "" {
		contentType = ct
	}
	hosted, err := r.store.Upload(ctx, resp.Body, SanitizeFileName(name)+extension(contentType), contentType)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return hosted, nil
}

// Validate issues a HEAD request and checks the media type and size. It
// returns the reported content type.
func (r *Resolver) Validate(ctx context.Context, imageURL string) (string, error) {
	resp, err := r.fetcher.Fetch(ctx, equipment.FetchRequest{URL: imageURL, Method: http.MethodHead, Timeout: r.cfg.Timeout})
	if err != nil {
		return "", fmt.Errorf("head image: %w", err)
	}
	contentType := resp.ContentType()
	if !strings.HasPrefix(strings.ToLower(contentType), "image/") {
		return "", fmt.Errorf("%w: content type %q", ErrImageRejected, contentType)
	}
	size, _ := strconv.ParseInt(resp.Headers.Get("Content-Length"), 10, 64)
	if size < r.cfg.MinBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrImageRejected, size)
	}
	return contentType, nil
}

// search asks the configured search page for more candidates.
func (r *Resolver) search(ctx context.Context, rec equipment.Record) []string {
	if r.cfg.SearchURL == "" {
		return nil
	}
	query := strings.TrimSpace(rec.Name + " " + rec.Type + " military equipment")
	searchURL := strings.ReplaceAll(r.cfg.SearchURL, QueryToken, url.QueryEscape(query))
	resp, err := r.fetcher.Fetch(ctx, equipment.FetchRequest{URL: searchURL, Method: http.MethodGet, Timeout: r.cfg.Timeout})
	if err != nil {
		r.logger.Warn("image search failed", zap.String("query", query), zap.Error(err))
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		r.logger.Warn("image search unreadable", zap.String("query", query), zap.Error(err))
		return nil
	}
	var out []string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, _ := img.Attr("src")
		if abs := extract.ResolveURL(searchURL, src); abs != "" {
			out = append(out, abs)
		}
		return len(out) < r.cfg.SearchResults
	})
	return out
}

var (
	unsafeChars = regexp.MustCompile(`[^a-z0-9\-_]`)
	underscores = regexp.MustCompile(`_+`)
)

// SanitizeFileName lowercases name and reduces it to [a-z0-9-_].
func SanitizeFileName(name string) string {
	s := unsafeChars.ReplaceAllString(strings.ToLower(name), "_")
	s = strings.Trim(underscores.ReplaceAllString(s, "_"), "_")
	if s == "" {
		return "image"
	}
	return s
}

func extension(contentType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0])) {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".jpg"
	}
}
