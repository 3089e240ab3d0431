// Package postgres provides the Postgres-backed implementations of the
// scheduler's shared-state interfaces: the work claim manager, the result
// sink, the domain retry queue, and the budget-limited search queue.
//
// All mutation of shared backlog state goes through single-statement
// lock-and-skip claims (FOR UPDATE SKIP LOCKED) or conditional single-row
// updates; there are no read-then-write sequences at this layer.
package postgres
