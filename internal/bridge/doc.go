// ABOUTME: Package documentation for the exchange bridge.
// ABOUTME: Describes correlation of synchronous calls to async replies.

// Package bridge turns asynchronous fabric exchanges into synchronous calls.
//
// Each in-out call gets a fresh correlation token, a one-slot reply channel
// and a bounded wait. Replies are matched by token, the first delivery wins,
// and replies for calls that already timed out are recognized and dropped.
package bridge
