// Package job runs booking jobs: one goroutine per job polls the rail
// provider, applies the seat policy to the caller's selected trains and
// stops at the first successful reservation.
//
// Status moves pending -> running -> {success, failed, cancelled}. Terminal
// states are absorbing, so a cancel racing a natural completion resolves to
// whichever transition lands first and the other becomes a no-op.
package job
