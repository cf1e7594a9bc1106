// Package session owns authenticated rail sessions.
//
// A Session holds the provider client handle, the sealed credentials used
// for silent re-login, and the cancel handles of the jobs started under it.
// Sessions expire on a sliding TTL: Get evaluates expiry lazily and the
// sweep loop in Run destroys expired sessions eagerly.
//
// Destroying a session cancels its jobs, closes its observers, and
// logs out of the provider. Logout failures are logged and never returned.
package session
