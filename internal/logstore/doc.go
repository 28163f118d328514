// Package logstore defines the ordered message log consumed by every other
// engine component: an append log keyed by a monotonically increasing id, a
// payload blob store, and an atomic counter.
//
// Two implementations are provided. PebbleStore keeps the log in an embedded
// Pebble database for single-process deployments; RedisStore keeps it in
// Redis (counter via INCR, index in a sorted set, payloads in string keys)
// for multi-process deployments.
//
// The one consistency rule the rest of the system relies on is commit
// atomicity: Commit adds the index entry and the payload as a single atomic
// unit. Everything else (range scans, trims) is deliberately non-transactional,
// so every reader must treat an indexed id with an absent payload as a normal
// skip, never an error.
package logstore
