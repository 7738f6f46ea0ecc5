package equipment

import (
	"context"
	"net/http"
	"time"
)

// Repository persists canonical records. Implementations must be safe for
// concurrent use by batch workers.
type Repository interface {
	ExistsByNameAndCountry(ctx context.Context, name, country string) (bool, error)
	Create(ctx context.Context, record Record) (Stored, error)
}

// Stored is a record that has been assigned an identifier.
type Stored struct {
	ID     string
	Record Record
}

// BlobStore hosts binary objects. Every call creates a fresh object.
type BlobStore interface {
	Upload(ctx context.Context, data []byte, filenameHint, contentType string) (string, error)
}

// Publisher pushes notifications (e.g. record created) to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher retrieves a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a page needs a JavaScript-capable fetch.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces unique identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Method  string
	Timeout time.Duration
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// ContentType returns the response media type header.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get("Content-Type")
}
