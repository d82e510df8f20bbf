// Package memkv is a thread-safe in-memory key-value store with per-key TTL.
//
// Keys are spread over RW-locked shards; a background goroutine removes
// expired keys in deadline order. Reads also treat expired keys as missing,
// so a value is never returned past its deadline even if the sweeper lags.
//
// The node keeps outstanding-request bookkeeping and peer metadata here.
package memkv
