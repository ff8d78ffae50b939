// Package audit records who did what to which registry resource.
//
// Repositories hand a Record to an Emitter after every operation. The emitter
// queues it on a buffered channel and a single goroutine writes it to a Sink
// (the security_audit_logs table in production). Emit never blocks and never
// returns an error: storage failures and dropped records are reported to
// observers, which log them and count them in metrics.
package audit
