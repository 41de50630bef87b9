package backend

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies backend failures the way the rest of the daemon needs to
// react to them. AuthorizationDenied and NotFound are deliberately distinct:
// a row-level policy rejection must never be presented as "does not exist".
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthorizationDenied
	KindNotFound
	KindConflict
	KindTransient
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuthorizationDenied:
		return "authorization_denied"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a typed backend error carrying the failed operation and the
// classified kind.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (HTTP %d): %s", e.Op, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Message)
}

// IsKind reports whether err is a backend Error of the given kind.
func IsKind(err error, k Kind) bool {
	var be *Error
	return errors.As(err, &be) && be.Kind == k
}

func IsAuthorizationDenied(err error) bool { return IsKind(err, KindAuthorizationDenied) }
func IsNotFound(err error) bool            { return IsKind(err, KindNotFound) }
func IsConflict(err error) bool            { return IsKind(err, KindConflict) }
func IsTransient(err error) bool           { return IsKind(err, KindTransient) }
func IsValidation(err error) bool          { return IsKind(err, KindValidation) }

// classify maps an HTTP status (and response body) to an error kind.
// Constraint violations surface as 409 or as a Postgres 23xxx code in the
// body depending on the backend version, so both are checked.
func classify(status int, body string) Kind {
	switch {
	case status == 401 || status == 403:
		return KindAuthorizationDenied
	case status == 404 || status == 406:
		return KindNotFound
	case status == 409:
		return KindConflict
	case status >= 500:
		return KindTransient
	}
	if strings.Contains(body, `"23505"`) || strings.Contains(body, `"23503"`) {
		return KindConflict
	}
	if status >= 400 {
		return KindValidation
	}
	return KindUnknown
}

func httpError(op string, status int, body string) *Error {
	return &Error{Kind: classify(status, body), Op: op, Status: status, Message: strings.TrimSpace(body)}
}

func transientError(op string, err error) *Error {
	return &Error{Kind: KindTransient, Op: op, Message: err.Error()}
}

func validationError(op, msg string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: msg}
}
