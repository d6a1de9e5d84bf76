// Package errdefs defines the error kinds shared by every Charlotte component.
//
// Callers test kinds with errors.Is against the sentinel values:
//
//	if errors.Is(err, errdefs.ErrNotFound) {
//	    // 404
//	}
package errdefs

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes an error for callers and transports.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindDuplicateName      Kind = "duplicate_name"
	KindBackendUnavailable Kind = "backend_unavailable"
	KindProtocolViolation  Kind = "protocol_violation"
	KindSandboxFault       Kind = "sandbox_fault"
	KindAlreadyExists      Kind = "already_exists"
	KindInvalid            Kind = "invalid"
)

// Sentinel errors, one per kind.
var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateName      = errors.New("duplicate name")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrProtocolViolation  = errors.New("protocol violation")
	ErrSandboxFault       = errors.New("sandbox fault")
	ErrAlreadyExists      = errors.New("already exists")
	ErrInvalid            = errors.New("invalid argument")
)

var sentinels = map[Kind]error{
	KindNotFound:           ErrNotFound,
	KindDuplicateName:      ErrDuplicateName,
	KindBackendUnavailable: ErrBackendUnavailable,
	KindProtocolViolation:  ErrProtocolViolation,
	KindSandboxFault:       ErrSandboxFault,
	KindAlreadyExists:      ErrAlreadyExists,
	KindInvalid:            ErrInvalid,
}

// Error is a categorized error with operation context.
type Error struct {
	// Kind categorizes the failure.
	Kind Kind

	// Op is the operation that failed (e.g. "vectorstore.search").
	Op string

	// Resource names the entity involved (e.g. "tool lookup").
	Resource string

	// Body is the raw error body returned by a backend, if any.
	Body string

	// Message is a human-readable description.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, e.Op+":")
	}
	switch {
	case e.Message != "":
		parts = append(parts, e.Message)
	case e.Resource != "":
		parts = append(parts, e.Resource, sentinelText(e.Kind))
	default:
		parts = append(parts, sentinelText(e.Kind))
	}
	if e.Cause != nil {
		parts = append(parts, "("+e.Cause.Error()+")")
	}
	if e.Body != "" {
		parts = append(parts, "body="+truncate(e.Body, 512))
	}
	return strings.Join(parts, " ")
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

func sentinelText(k Kind) string {
	if s, ok := sentinels[k]; ok {
		return s.Error()
	}
	return string(k)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// NotFound reports that resource id does not exist.
func NotFound(resource, id string) error {
	return &Error{Kind: KindNotFound, Resource: fmt.Sprintf("%s %q", resource, id)}
}

// Duplicate reports that name is already taken for resource.
func Duplicate(resource, name string) error {
	return &Error{Kind: KindDuplicateName, Resource: fmt.Sprintf("%s %q", resource, name)}
}

// Backend reports a failed request to an external service. body carries
// the service's response body when one was received.
func Backend(op, body string, cause error) error {
	return &Error{Kind: KindBackendUnavailable, Op: op, Body: body, Cause: cause}
}

// Protocol reports a contract violation by the language model.
func Protocol(msg string) error {
	return &Error{Kind: KindProtocolViolation, Message: msg}
}

// Sandbox reports a tool body failure.
func Sandbox(tool string, cause error) error {
	return &Error{Kind: KindSandboxFault, Op: "tool " + tool, Cause: cause}
}

// Invalid reports a malformed argument.
func Invalid(format string, args ...any) error {
	return &Error{Kind: KindInvalid, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists reports that an index or collection is already present.
func AlreadyExists(resource string) error {
	return &Error{Kind: KindAlreadyExists, Resource: resource}
}

// KindOf returns the kind of err, or "" when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	for k, s := range sentinels {
		if errors.Is(err, s) {
			return k
		}
	}
	return ""
}

// IgnoreExists returns nil when err reports an existing index or collection.
func IgnoreExists(err error) error {
	if errors.Is(err, ErrAlreadyExists) {
		return nil
	}
	return err
}
