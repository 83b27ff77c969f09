package common

import (
	"fmt"

	"golang.org/x/xerrors"
)

// Kind classifies the failures that abort a classification run.
type Kind int

const (
	KindConfig Kind = iota + 1
	KindEncoding
	KindProtocol
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindEncoding:
		return "encoding"
	case KindProtocol:
		return "protocol"
	case KindTransport:
		return "transport"
	}
	return "unknown"
}

// ErrNoData is returned when a level-site holds no node for the pointer it
// was given. The run ends without a classification.
var ErrNoData = xerrors.New("level-site has no data for pointer: classification incomplete")

// Error is a classified error. Site and Round are -1 when not relevant.
type Error struct {
	Kind  Kind
	Site  int
	Round int
	msg   string
	err   error
	frame xerrors.Frame
}

func newError(kind Kind, msg string, err error) *Error {
	return &Error{
		Kind:  kind,
		Site:  -1,
		Round: -1,
		msg:   msg,
		err:   err,
		frame: xerrors.Caller(2),
	}
}

// ConfigError reports missing or invalid startup parameters.
func ConfigError(msg string, err error) error {
	return newError(KindConfig, msg, err)
}

// EncodingError reports a malformed feature or an encryption failure.
func EncodingError(msg string, err error) error {
	return newError(KindEncoding, msg, err)
}

// ProtocolError reports an unexpected message or a broken round.
func ProtocolError(msg string, err error) error {
	return newError(KindProtocol, msg, err)
}

// TransportError reports a connection failure.
func TransportError(msg string, err error) error {
	return newError(KindTransport, msg, err)
}

// At attaches the site and round indices to err when it is a *Error.
func At(err error, site, round int) error {
	var e *Error
	if xerrors.As(err, &e) {
		e.Site = site
		e.Round = round
	}
	return err
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return xerrors.As(err, &e) && e.Kind == kind
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Site >= 0 {
		prefix = fmt.Sprintf("%s (site %d, round %d)", prefix, e.Site, e.Round)
	}
	if e.err == nil {
		return prefix + ": " + e.msg
	}
	return fmt.Sprintf("%s: %s: %v", prefix, e.msg, e.err)
}

// Unwrap returns the next error in the chain.
func (e *Error) Unwrap() error {
	return e.err
}

// Format prints the error to the formatter.
func (e *Error) Format(f fmt.State, c rune) {
	xerrors.FormatError(e, f, c)
}

// FormatError prints the stack frame when '%+v' is used.
func (e *Error) FormatError(p xerrors.Printer) error {
	p.Print(e.Error())
	if p.Detail() {
		e.frame.Format(p)
	}
	return nil
}
