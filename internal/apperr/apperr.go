package apperr

import (
	"net/http"

	"github.com/m-mizutani/goerr/v2"
)

// Error tags classify failures across the ingestion pipeline. Handlers map
// tags to HTTP status codes and the retry layer keys off TagTransient.
var (
	// TagValidation marks bad input: malformed requests, unsupported image
	// formats, empty embedding text, illegal state transitions.
	TagValidation = goerr.NewTag("validation")

	// TagTransient marks failures worth retrying: timeouts, rate limits,
	// upstream 5xx, connection resets.
	TagTransient = goerr.NewTag("transient")

	// TagConfig marks misconfiguration: missing API keys, unknown providers,
	// bad credentials. Never retried.
	TagConfig = goerr.NewTag("config")

	// TagNotFound marks lookups for records that do not exist.
	TagNotFound = goerr.NewTag("not_found")

	// TagDatabase marks persistence failures.
	TagDatabase = goerr.NewTag("database")
)

// IsRetryable reports whether err carries the transient tag.
func IsRetryable(err error) bool {
	return goerr.HasTag(err, TagTransient)
}

// HTTPStatus maps an error to the status code its tag implies.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case goerr.HasTag(err, TagValidation):
		return http.StatusBadRequest
	case goerr.HasTag(err, TagNotFound):
		return http.StatusNotFound
	case goerr.HasTag(err, TagConfig):
		return http.StatusInternalServerError
	case goerr.HasTag(err, TagTransient):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
