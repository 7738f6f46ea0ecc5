package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"just host", "example.com", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"ip address", "192.168.1.1", "192.168.1.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if crawlerPagesTotal == nil || crawlerBytesTotal == nil ||
		httpRequestsTotal == nil || httpRequestDurationSeconds == nil ||
		candidatesTotal == nil || persistOutcomesTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObservePipeline(t *testing.T) {
	Init()

	before := testutil.ToFloat64(candidatesTotal.WithLabelValues("wikipedia", "accepted"))
	ObserveCandidate("wikipedia", "accepted")
	if got := testutil.ToFloat64(candidatesTotal.WithLabelValues("wikipedia", "accepted")); got != before+1 {
		t.Errorf("expected candidate counter to grow by 1, got %f -> %f", before, got)
	}

	before = testutil.ToFloat64(persistOutcomesTotal.WithLabelValues("skipped"))
	ObservePersist("skipped")
	if got := testutil.ToFloat64(persistOutcomesTotal.WithLabelValues("skipped")); got != before+1 {
		t.Errorf("expected persist counter to grow by 1, got %f -> %f", before, got)
	}

	ObserveCrawl("https://En.Wikipedia.org/wiki/T-72", "200", 512)
	if got := testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("en.wikipedia.org")); got < 512 {
		t.Errorf("expected bytes counter >= 512, got %f", got)
	}

	IncActiveRuns()
	if got := testutil.ToFloat64(parserRunsActive); got < 1 {
		t.Errorf("expected active runs >= 1, got %f", got)
	}
	DecActiveRuns()
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
