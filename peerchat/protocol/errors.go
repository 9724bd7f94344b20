package protocol

import (
	"errors"
)

// Kind classifies connection failures. Every Kind is fatal to the connection it
// occurred on and never to the process.
type Kind uint8

const (
	KindTransport Kind = iota + 1
	KindProtocol
	KindCrypto
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindCrypto:
		return "crypto"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

// Error is a classified connection error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := e.Kind.String() + " error"
	if e.Op != "" {
		msg += " during " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err. A nil err yields nil, and an err that is already an
// *Error keeps its original kind.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind == kind
	}
	return false
}

// KindOf returns the kind carried by err, or zero if err is unclassified.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// Classify wraps an error returned by ReadFrame or WriteFrame with its kind.
// Framing violations are protocol errors and anything else coming from the
// stream is a transport error. Decode errors are already classified.
func Classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTruncated), errors.Is(err, ErrFrameTooLarge):
		return Wrap(KindProtocol, op, err)
	default:
		return Wrap(KindTransport, op, err)
	}
}
