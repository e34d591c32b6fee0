// ABOUTME: Package documentation for the TTL token set.
// ABOUTME: Describes marking, taking and expiry of tombstoned tokens.

// Package dedupe provides a bounded TTL set used to remember retired keys,
// such as correlation tokens whose callers have already given up waiting.
package dedupe
