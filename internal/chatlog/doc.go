// Package chatlog persists inbound chat messages to Postgres in batches.
//
// The sink accumulates rows and flushes either when the batch fills or on
// a fixed interval, whichever comes first. Inserts are append-only with
// ON CONFLICT DO NOTHING on the message id, so replayed deliveries after
// a reconnect are harmless.
package chatlog
