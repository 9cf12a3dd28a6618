package postgres

import "fmt"

// TransportError covers connect failure, send failure, and socket errors --
// always fatal: the actor replies once and terminates.
type TransportError struct {
	Reason string
	Err    error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("postgres: transport error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("postgres: transport error: %s", e.Reason)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MetricKind labels this error for metrics.ErrorKind without requiring that
// package to import postgres.
func (e *TransportError) MetricKind() string { return "transport_error" }

// ProtocolError covers unknown tags, truncated frames, and messages that
// don't belong in the current phase -- always fatal.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("postgres: protocol error: %s", e.Reason)
}

func (e *ProtocolError) MetricKind() string { return "protocol_error" }

// PostgresError wraps a server-reported ErrorResponse. During auth and init
// it ends the session; in every later phase it is not fatal: the actor
// waits for the inevitable ReadyForQuery and re-enters ready.
type PostgresError struct {
	Fields map[byte]string
}

func (e *PostgresError) Error() string {
	if msg, ok := e.Fields['M']; ok {
		return "postgres: " + msg
	}
	return "postgres: server error"
}

func (e *PostgresError) MetricKind() string { return "postgres_error" }

// CodecError signals that encoding a parameter or decoding a field failed,
// whether in a user hook, in the registry, or because no branch of the
// value coder could handle the value. It aborts
// finalizing the current result but leaves the session on track to
// re-enter ready.
type CodecError struct {
	Reason string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("postgres: %s", e.Reason)
}

func (e *CodecError) MetricKind() string { return "codec_error" }

// ErrNotReady describes a request issued while the actor is not in the
// ready phase. Conn's methods do not return it: under the admission rule
// such a request waits until the actor is ready again.
var ErrNotReady = &CallerError{Reason: "connection is not ready for a new request"}

// ErrClosed is returned by requests made after Close has been called.
var ErrClosed = &CallerError{Reason: "connection is closed"}

// ErrRollback is the sentinel InTransaction callers can return (or pass to
// panic, mirroring a panic-to-cancel idiom) to cancel a transaction
// without propagating an error to their own caller.
var ErrRollback = &CallerError{Reason: "transaction rolled back by request"}

// CallerError signals caller misuse of the public API.
type CallerError struct {
	Reason string
}

func (e *CallerError) Error() string { return "postgres: " + e.Reason }
