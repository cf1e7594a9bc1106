// Package fingerprint derives log-safe identifiers from bearer values.
//
// Session ids grant full access to a user's rail account for as long as the
// session lives, so they never appear in logs verbatim. Log lines carry a
// short HMAC-SHA256 fingerprint instead.
//
// Environment:
//   - MACRO_LOG_FINGERPRINT_KEY: when set, fingerprints are keyed with it and stay
//     stable across restarts. When unset, a random per-process key is used.
package fingerprint
