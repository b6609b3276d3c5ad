// Package slotkv is a cluster-aware access layer for Redis-style key-value
// stores that partition keys into 16384 hash slots.
//
// In cluster mode the client learns the slot layout from CLUSTER NODES, keeps
// it in a local topology store (a TTL file cache by default) and sends every
// key to the master owning slot(key) = CRC16(key) mod 16384. In single-node
// mode every key goes to the one server it connected to.
//
// Components:
//   - slot: CRC16 (XMODEM) and slot computation.
//   - topology: CLUSTER NODES parsing and the cached Resolver.
//   - router: slot -> master lookup, plus an even-split approximation.
//   - pipeline: result buffer used to emulate batches across shards.
//   - filecache: TTL file cache; provider/file exposes it as a topology store.
//   - store: the server connection interfaces; store/redisstore implements them on go-redis.
//
// Keys:
//
//	cluster:<ns>:nodes  - cached topology snapshot (epoch-stamped)
//
// Batches:
//
//	p := client.Pipeline()
//	p.Set(ctx, "a", "1", 0)
//	p.Get(ctx, "b")
//	res, err := p.Exec(ctx) // one Result per command, in issue order
package slotkv
