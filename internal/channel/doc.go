// Package channel provides the bounded outgoing channels streaming workers
// write to and transports drain. A channel is a named FIFO queue; the worker
// owns the writes, the transport performs blocking pops and eventually
// deletes the channel.
//
// Two implementations exist: Memory for the embedded (single-process) backend
// and Redis (lists with RPUSH/LLEN/BLPOP) for multi-process deployments.
// Both report ErrGone from Push once the channel has been deleted, which is
// how a worker observes external cancellation through a round-trip result.
package channel
