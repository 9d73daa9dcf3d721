// Package publish implements the broadcast publish call against the
// relay's HTTP endpoint. It is a plain request/response collaborator of
// the connection core: no retries, no backoff, and failures are always
// reported as a structured Result rather than an error.
package publish
