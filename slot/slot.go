// Package slot maps keys onto the fixed 16384-slot space of a hash-partitioned cluster.
//
// The mapping must match the server bit for bit: a different table or reduction
// silently sends keys to the wrong shard.
package slot

import "strings"

// Count is the number of hash slots.
const Count = 16384

// Slot returns the slot in [0, Count) that owns key. The whole key is hashed.
func Slot(key []byte) int {
	return int(CRC16(key)) % Count
}

// SlotString is Slot for string keys.
func SlotString(key string) int {
	return Slot([]byte(key))
}

// HashTag returns the part of key that Redis hashes when the key carries a
// non-empty {tag}; otherwise it returns key unchanged. Keys sharing a tag land
// in the same slot.
func HashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}
