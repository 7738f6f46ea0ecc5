package crawler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
	"github.com/JakeFAU/equipment-crawler/internal/source"
)

// fetchDocument waits for the host's turn, fetches rawURL with the source's
// headless policy and parses the body.
func (c *Crawler) fetchDocument(ctx context.Context, src source.Config, rawURL string, timeout time.Duration) (*goquery.Document, string, error) {
	if err := c.limiter.Wait(ctx, rawURL); err != nil {
		return nil, "", err
	}
	resp, err := c.fetch(ctx, src, equipment.FetchRequest{URL: rawURL, Method: http.MethodGet, Timeout: timeout})
	if err != nil {
		return nil, "", err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, "", fmt.Errorf("parse html: %w", err)
	}
	finalURL := resp.URL
	if finalURL == "" {
		finalURL = rawURL
	}
	return doc, finalURL, nil
}

func (c *Crawler) fetch(ctx context.Context, src source.Config, req equipment.FetchRequest) (equipment.FetchResponse, error) {
	if src.Headless == source.HeadlessAlways && c.headless != nil {
		return c.headless.Fetch(ctx, req)
	}
	resp, err := c.static.Fetch(ctx, req)
	if err != nil {
		return resp, err
	}
	if src.Headless != source.HeadlessAuto || c.headless == nil || c.detector == nil || !c.detector.ShouldPromote(resp) {
		return resp, nil
	}
	rendered, herr := c.headless.Fetch(ctx, req)
	if herr != nil {
		c.logger.Warn("headless promotion failed, using static body",
			zap.String("url", req.URL),
			zap.Error(herr),
		)
		return resp, nil
	}
	return rendered, nil
}
