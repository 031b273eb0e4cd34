package delivery

import "errors"

var (
	// ErrInvalidRange means the Range header is malformed, multi-range or out of bounds.
	ErrInvalidRange = errors.New("invalid range")
	// ErrTrackNotFound means the catalog has no track with the requested id.
	ErrTrackNotFound = errors.New("track not found")
	// ErrSourceUnavailable means the resolved file cannot be opened or read.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrTruncatedSource means the source ended before the promised number of bytes.
	ErrTruncatedSource = errors.New("source truncated")
	// ErrCancelled means the client went away or the caller aborted the stream.
	ErrCancelled = errors.New("stream cancelled")
	// ErrSinkWrite means writing to the response failed while the request was still live.
	ErrSinkWrite = errors.New("sink write failed")
	// ErrAdmissionRejected means a concurrency cap is reached. It is joined with
	// the limiter error naming which cap.
	ErrAdmissionRejected = errors.New("admission rejected")
)
