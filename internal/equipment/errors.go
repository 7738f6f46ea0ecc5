package equipment

import "errors"

// ErrUnexpectedStatus is returned by fetchers for non-2xx responses.
var ErrUnexpectedStatus = errors.New("unexpected status")
