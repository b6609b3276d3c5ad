// Package topology discovers which master owns each slot range of a cluster.
//
// Parse turns a CLUSTER NODES reply into a Topology sorted by the first slot of
// each range, with every master paired to its replica. Resolver caches that
// result in a provider.Provider so restarts skip the discovery round trip until
// the topology is invalidated.
package topology

import (
	"fmt"

	"github.com/unkn0wn-root/slotkv/slot"
)

// MaxSlot is the highest valid slot number.
const MaxSlot = slot.Count - 1

// SlotRange is an inclusive range of slots.
type SlotRange struct {
	Min int `msgpack:"min" json:"min"`
	Max int `msgpack:"max" json:"max"`
}

// Contains reports whether s lies inside the range.
func (r SlotRange) Contains(s int) bool { return s >= r.Min && s <= r.Max }

func (r SlotRange) String() string {
	if r.Min == r.Max {
		return fmt.Sprintf("%d", r.Min)
	}
	return fmt.Sprintf("%d-%d", r.Min, r.Max)
}

// ServerNode is one slot range and the master (and optional replica) serving it.
// A master owning several ranges appears once per range.
type ServerNode struct {
	ID          string    `msgpack:"id" json:"id"`
	MasterAddr  string    `msgpack:"master" json:"master"`
	ReplicaAddr string    `msgpack:"replica,omitempty" json:"replica,omitempty"` // "" when unknown
	Slots       SlotRange `msgpack:"slots" json:"slots"`
}

// Topology is a point-in-time snapshot of the cluster, sorted by Slots.Min.
type Topology struct {
	Nodes []ServerNode `msgpack:"nodes" json:"nodes"`
}

// Empty reports whether the snapshot has no ranges.
func (t Topology) Empty() bool { return len(t.Nodes) == 0 }

// Masters returns the distinct master addresses in slot order.
func (t Topology) Masters() []string {
	seen := make(map[string]struct{}, len(t.Nodes))
	out := make([]string, 0, len(t.Nodes))
	for _, n := range t.Nodes {
		if _, ok := seen[n.MasterAddr]; ok {
			continue
		}
		seen[n.MasterAddr] = struct{}{}
		out = append(out, n.MasterAddr)
	}
	return out
}

// Validate checks ordering and that no two ranges overlap. Gaps are allowed.
func (t Topology) Validate() error {
	for i, n := range t.Nodes {
		if n.Slots.Min < 0 || n.Slots.Max > MaxSlot || n.Slots.Min > n.Slots.Max {
			return fmt.Errorf("topology: node %s has invalid range %s", n.ID, n.Slots)
		}
		if i > 0 && t.Nodes[i-1].Slots.Max >= n.Slots.Min {
			return fmt.Errorf("topology: range %s of %s overlaps %s of %s",
				n.Slots, n.ID, t.Nodes[i-1].Slots, t.Nodes[i-1].ID)
		}
	}
	return nil
}

// Covered returns how many of the slot.Count slots have an owner.
func (t Topology) Covered() int {
	n := 0
	for _, node := range t.Nodes {
		n += node.Slots.Max - node.Slots.Min + 1
	}
	return n
}
