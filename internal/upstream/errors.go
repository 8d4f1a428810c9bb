package upstream

import (
	"errors"
	"fmt"
)

// ErrProxy marks proxy formatting or reachability failures.
var ErrProxy = errors.New("proxy error")

// APIError is a non-2xx or malformed-JSON reply from the webmail API.
// Transport-level retries have already been spent by the time it surfaces;
// it is never retried again.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream api error: %s", e.Body)
	}
	return fmt.Sprintf("upstream api error: HTTP %d: %s", e.Status, e.Body)
}
