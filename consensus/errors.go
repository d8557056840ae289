package consensus

import "fmt"

// ErrorCode identifies the kind of a header-validation failure, mirroring
// the sentinel-kind+message shape used throughout the wider protocol's
// consensus error types.
type ErrorCode string

const (
	ERR_MALFORMED_HEADER ErrorCode = "MalformedHeader"
)

// HeaderError is returned by the codec, retarget calculator, and chain
// verifier for well-classified failures a caller may want to branch on.
type HeaderError struct {
	Code ErrorCode
	Msg  string
}

func (e *HeaderError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func headererr(code ErrorCode, format string, args ...any) error {
	return &HeaderError{Code: code, Msg: fmt.Sprintf(format, args...)}
}
