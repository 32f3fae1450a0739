// Package store provides persistence for chatd's messaging core.
//
// # Data model
//
// Three tables back the messaging layer:
//
//   - users: a read-mostly mirror of the identity subsystem, consumed for
//     email -> stable-ID resolution and display names
//   - chats: one row per unordered participant pair, with a UNIQUE canonical
//     pair key so at most one chat can exist for any two users
//   - messages: append-only, ordered by (sent_at, seq) within a chat
//
// # Ordering guarantees
//
// AppendMessage assigns send timestamps inside a transaction and clamps them
// to be non-decreasing per chat, with a per-chat sequence number as a stable
// tie-break. ListMessages therefore always returns an identical sequence for
// repeated reads with no intervening appends.
//
// # Uniqueness
//
// Chat uniqueness for a pair is enforced at the storage layer by the UNIQUE
// index on pair_key. CreateChat surfaces a violation as ErrDuplicateChat,
// which the directory layer resolves by re-reading the winning row; the
// conflict is never visible to callers above it.
package store
