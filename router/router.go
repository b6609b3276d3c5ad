// Package router picks the master that owns a key. Every function is a pure
// function of (key, topology snapshot).
package router

import (
	"errors"
	"fmt"
	"sort"

	"github.com/unkn0wn-root/slotkv/slot"
	"github.com/unkn0wn-root/slotkv/topology"
)

var (
	ErrEmptyTopology = errors.New("slotkv: topology has no nodes")
	ErrSlotUnowned   = errors.New("slotkv: no node owns slot")
)

// UnownedError reports the slot that fell into a gap of the topology.
type UnownedError struct {
	Slot int
}

func (e *UnownedError) Error() string { return fmt.Sprintf("%v %d", ErrSlotUnowned, e.Slot) }
func (e *UnownedError) Unwrap() error { return ErrSlotUnowned }

// Route returns the master address whose slot range contains slot(key).
func Route(key []byte, t topology.Topology) (string, error) {
	n, err := Owner(slot.Slot(key), t)
	if err != nil {
		return "", err
	}
	return n.MasterAddr, nil
}

// Owner binary-searches t (sorted by Slots.Min) for the range containing s.
func Owner(s int, t topology.Topology) (topology.ServerNode, error) {
	if t.Empty() {
		return topology.ServerNode{}, ErrEmptyTopology
	}
	nodes := t.Nodes
	// first node starting after s; the candidate is the one before it
	i := sort.Search(len(nodes), func(i int) bool { return nodes[i].Slots.Min > s })
	if i == 0 || !nodes[i-1].Slots.Contains(s) {
		return topology.ServerNode{}, &UnownedError{Slot: s}
	}
	return nodes[i-1], nil
}

// Locate is Owner for callers that only care whether a node was found.
func Locate(s int, t topology.Topology) (topology.ServerNode, bool) {
	n, err := Owner(s, t)
	return n, err == nil
}

// Approximate maps slot(key) onto the node list as if the slot space were split
// into equal parts in encounter order: index = slot / (16384 / len(nodes)).
//
// This ignores the real ranges and misroutes whenever the cluster's slots are
// not evenly distributed. It exists only as a last resort when range data is
// not trusted. The returned index is clamped to the last node, since 16384 is
// rarely a multiple of the node count.
func Approximate(key []byte, t topology.Topology) (string, int, error) {
	if t.Empty() {
		return "", 0, ErrEmptyTopology
	}
	s := slot.Slot(key)
	width := slot.Count / len(t.Nodes)
	if width == 0 {
		width = 1
	}
	idx := min(s/width, len(t.Nodes)-1)
	return t.Nodes[idx].MasterAddr, idx, nil
}
