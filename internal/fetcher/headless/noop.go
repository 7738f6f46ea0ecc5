package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/equipment-crawler/internal/equipment"
)

// ErrUnavailable is returned when no headless browser is configured.
var ErrUnavailable = errors.New("headless fetcher not configured")

// Noop implements Fetcher but always returns ErrUnavailable. It stands in
// when headless rendering is disabled.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch returns ErrUnavailable.
func (Noop) Fetch(_ context.Context, _ equipment.FetchRequest) (equipment.FetchResponse, error) {
	return equipment.FetchResponse{}, ErrUnavailable
}
