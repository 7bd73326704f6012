// Package watch is the polling engine: the Partitioner spreads followers
// across daily group jobs, the Runner walks one group sequentially, and the
// Pipeline runs the incremental check-and-deliver cycle for a single
// follower. Fan-out is deliberately absent; at most one batch body runs at a
// time per group job and the Runner paces followers to keep the upstream hub
// and Telegram happy.
package watch
