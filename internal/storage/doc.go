// Package storage owns the durable state: the followers table (with its
// delivery watermark) and the append-only send_history delivery log.
//
// The watch engine mutates follower records exclusively through
// RecordDelivery and TouchProcessed; nothing else writes the watermark.
// Rows in send_history are never updated or deleted.
package storage
