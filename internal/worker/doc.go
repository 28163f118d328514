// Package worker implements the per-subscription streaming worker: it scans
// the log from a starting position, evaluates the subscription's criteria
// against each message, and forwards matches to a bounded outgoing channel.
//
// The worker is the one place the engine's degradation policy lives. It never
// blocks producers: when the subscriber's channel is full, matches are
// dropped and counted, and the subscriber learns about the gap from a single
// batched limit notice. When nothing matches for a keepalive window the
// worker proves liveness with an empty heartbeat; a subscriber that cannot
// drain even those gets its channel deleted, which its transport observes as
// a timed-out pop. Termination is final; a worker never resumes.
package worker
