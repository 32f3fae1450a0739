// Package transport carries the websocket wire protocol. Clients send JSON
// frames ({"op": "send" | "history", ...}) and receive typed events
// (receiveMessage, receiveSystemNotice). Each connection maps to exactly one
// registry session.
package transport
