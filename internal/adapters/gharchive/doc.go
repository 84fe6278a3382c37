// Package gharchive fetches and decodes GH Archive hourly event files.
//
// One file per UTC hour, gzip-compressed NDJSON, named YYYY-MM-DD-H.json.gz
// with the hour not zero-padded. The fetcher classifies transport failures
// into the platform error codes (404 -> NotFound, everything else ->
// retryable) so callers never inspect transport errors directly.
package gharchive
