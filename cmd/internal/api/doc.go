// Package api is the REST boundary: login and session checks, booking jobs,
// direct train search, reservations and notification settings.
//
// Authenticated routes read the session id from the X-Session-ID header and
// slide the session's expiry on every successful call. Errors are returned
// in a stable {"error":{"code","message","details"}} envelope.
package api
