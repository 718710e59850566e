package netutil

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures reported by the HTTP and SFTP helpers.
type Kind string

const (
	// KindConnection means the remote host could not be reached, or the TLS
	// or SSH handshake failed.
	KindConnection Kind = "connection"
	// KindIO means a stream was interrupted before it completed.
	KindIO Kind = "io"
	// KindEncoding means text could not be encoded as UTF-8.
	KindEncoding Kind = "encoding"
	// KindTransfer means a single file upload or download failed.
	KindTransfer Kind = "transfer"
	// KindState means an SFTP operation was attempted on a client that is
	// not connected.
	KindState Kind = "state"
)

// Sentinel errors for use with errors.Is.
var (
	ErrConnection = &Error{Kind: KindConnection}
	ErrIO         = &Error{Kind: KindIO}
	ErrEncoding   = &Error{Kind: KindEncoding}
	ErrTransfer   = &Error{Kind: KindTransfer}
	ErrState      = &Error{Kind: KindState}
)

// Error is the error type returned by this package.
type Error struct {
	Kind Kind
	// Op is the operation that failed, e.g. "upload" or "http get".
	Op string
	// Path is the file, URL or host the operation was working on.
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	} else {
		b.WriteString(string(e.Kind))
	}
	if e.Path != "" {
		b.WriteString(" ")
		b.WriteString(e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else if e.Op != "" {
		fmt.Fprintf(&b, ": %s error", e.Kind)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind. A connection error is also an I/O error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == e.Kind {
		return true
	}
	return t.Kind == KindIO && e.Kind == KindConnection
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if there
// is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusError is returned when WithStatusCheck is set and the server answers
// with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	URL        string
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status from %s: %s", e.URL, e.Status)
}
