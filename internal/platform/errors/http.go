package errors

// HTTP-source helpers for mapping transport outcomes to project ErrorCodes
// and retry semantics. The archive fetcher classifies every failure through
// these so callers branch on codes, never on transport error strings.

import "net/http"

// FromHTTPStatus maps a non-2xx response status to an ErrorCode.
// 404 means the hour's archive does not exist and never will (permanent);
// everything else is worth another attempt on a future run.
func FromHTTPStatus(status int) ErrorCode {
	switch {
	case status == http.StatusNotFound:
		return ErrorCodeNotFound
	case status == http.StatusTooManyRequests:
		return ErrorCodeTooManyRequests
	default:
		return ErrorCodeUnavailable
	}
}

// Retryable reports whether the error is worth retrying.
// Permanent absence (NotFound) and caller mistakes are never retryable.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeUnavailable, ErrorCodeTooManyRequests:
		return true
	default:
		return false
	}
}
