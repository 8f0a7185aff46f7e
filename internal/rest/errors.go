// ABOUTME: Error returned when the REST API answers with a non-success status

package rest

import "fmt"

// DeliveryError is a non-2xx REST response. Body holds the start of the
// response for logging.
type DeliveryError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s %s returned status %d: %s", e.Method, e.Path, e.Status, e.Body)
}
