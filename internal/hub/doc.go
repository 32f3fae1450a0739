// Package hub provides the dispatch layer for direct messages.
//
// # Overview
//
// The hub sits between the live transport and the storage layers. A send
// operation moves through four stages: resolve the receiver identity,
// resolve or create the canonical chat for the pair, append the message to
// the store, then fan the payload out to every live session of both
// participants.
//
// # Failure semantics
//
// Persistence is the commit point: a message counts as sent once the append
// succeeds. Fan-out after that is best-effort — a dropped session delivery
// is logged and skipped, never an error, and never affects other sessions.
//
// Recoverable failures (unknown receiver, empty content, self-send) are
// reported as a system notice to the caller's own sessions and surfaced as
// sentinel errors. They abort before persistence, so nothing is rolled back.
//
// # Identity resolution
//
// Receiver lookup goes through the UserResolver interface, which reports
// absence as a first-class result rather than an error. The hub branches on
// it directly instead of threading exceptions across the fan-out boundary.
//
// # Presence
//
// The Announcer broadcasts join/leave notices to all registered sessions.
// It is also the broadcast-to-all primitive handed to collaborating services
// such as the periodic server-time notifier.
package hub
