// Package registry tracks the live sessions of every connected user.
//
// # Overview
//
// The registry is the single in-process owner of session state: a map from
// user ID to the set of currently open sessions, plus the reverse session ->
// user mapping. A user may hold any number of concurrent sessions (multiple
// tabs, multiple devices); each is addressable on its own.
//
// # Delivery model
//
// Each Session carries a buffered outbound event channel. Delivery is
// best-effort and non-blocking: a closed session or a full buffer drops the
// event and reports false, so one slow client can never stall fan-out to the
// others. The transport layer drains the channel and writes to the wire.
//
// # Consistency
//
// All operations are safe under concurrent connect/disconnect/lookup. The
// registry gives read-your-writes consistency on its own state: after
// Unregister returns the session is never reported again, and a session
// registered before a SessionsOf call began is always included.
//
// State is memory-only by design. On process restart every client reconnects
// and replays history from the store. Swapping this for a distributed
// registry (e.g. a shared cache) only requires keeping this package's
// contract.
package registry
