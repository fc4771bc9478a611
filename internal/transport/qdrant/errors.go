package qdrant

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/embedhq/codevec/internal/domain"
)

// Operation names used in error context and metrics labels.
const (
	opListCollections  = "list_collections"
	opCreateCollection = "create_collection"
	opCreateFieldIndex = "create_field_index"
	opUpsertPoint      = "upsert_point"
)

// APIError carries the failed operation, HTTP status and server message, and
// unwraps to a domain sentinel so callers can classify with errors.Is.
type APIError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("qdrant: %s: status %d: %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP response to the domain error taxonomy.
func classifyStatus(status int, message string) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return domain.ErrUnauthorized
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusConflict:
		return domain.ErrAlreadyExists
	case status >= 400 && status < 500:
		lower := strings.ToLower(message)
		// Qdrant reports duplicate collection creation as a 400 with an
		// "already exists" message rather than a 409.
		if strings.Contains(lower, "already exists") {
			return domain.ErrAlreadyExists
		}
		if strings.Contains(lower, "dimension") {
			return domain.ErrVectorDimMismatch
		}
		return domain.ErrInvalidSchema
	default:
		return domain.ErrUnavailable
	}
}
