package ingest

import "fmt"

type ErrorCode string

const (
	ERR_REQUEST_TIMEOUT ErrorCode = "RequestTimeout"
	ERR_CHUNK_INVALID   ErrorCode = "ChunkInvalid"
	ERR_CHAIN_INVALID   ErrorCode = "ChainInvalid"
	ERR_NO_PEER         ErrorCode = "NoPeer"
)

type IngestError struct {
	Code ErrorCode
	Msg  string
	Err  error
}

func (e *IngestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	if e.Msg == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *IngestError) Unwrap() error { return e.Err }

func ingesterr(code ErrorCode, err error, format string, args ...any) error {
	return &IngestError{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}
