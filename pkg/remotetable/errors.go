package remotetable

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTableClosed is returned when a cursor is opened on a table that has
// already been disconnected.
var ErrTableClosed = errors.New("remote table is closed")

// UsageError reports a malformed CREATE VIRTUAL TABLE statement.
type UsageError struct {
	Module string
	Got    int
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("%s requires exactly 2 arguments: URL and SQL query (got %d)", e.Module, e.Got)
}

// FetchErrorKind classifies why fetching the remote result set failed.
type FetchErrorKind uint8

// Fetch failure kinds.
const (
	// FetchTransport covers DNS, connect, TLS and timeout failures.
	FetchTransport FetchErrorKind = iota + 1
	// FetchHTTPStatus is any response status other than 200.
	FetchHTTPStatus
	// FetchInvalidPayload is a body that is not JSON, or JSON that is neither
	// an array nor an error object.
	FetchInvalidPayload
	// FetchRemote is an error object reported by the server.
	FetchRemote
)

func (k FetchErrorKind) String() string {
	switch k {
	case FetchTransport:
		return "transport"
	case FetchHTTPStatus:
		return "http_status"
	case FetchInvalidPayload:
		return "invalid_payload"
	case FetchRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// FetchError is returned when the single remote round trip fails.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchTransport:
		return fmt.Sprintf("transport error: %s", e.Message)
	case FetchHTTPStatus:
		return fmt.Sprintf("HTTP error code: %d", e.StatusCode)
	case FetchInvalidPayload:
		return fmt.Sprintf("invalid response from server: %s", e.Message)
	case FetchRemote:
		return fmt.Sprintf("server error: %s", e.Message)
	default:
		return fmt.Sprintf("fetch failed: %s", e.Message)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsFetchError reports whether err is a *FetchError of the given kind.
func IsFetchError(err error, kind FetchErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}

// SchemaDeclarationError is returned when the engine rejects the inferred
// column list.
type SchemaDeclarationError struct {
	SQL        string
	Duplicates []string
	Err        error
}

func (e *SchemaDeclarationError) Error() string {
	msg := fmt.Sprintf("declare schema %q: %v", e.SQL, e.Err)
	if len(e.Duplicates) > 0 {
		msg += fmt.Sprintf(" (duplicate column names after sanitization: %s)", strings.Join(e.Duplicates, ", "))
	}
	return msg
}

func (e *SchemaDeclarationError) Unwrap() error { return e.Err }
