package topology

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CLUSTER NODES field positions.
const (
	fieldID = iota
	fieldAddr
	fieldFlags
	fieldMaster
	fieldPingSent
	fieldPongRecv
	fieldEpoch
	fieldLink
	fieldSlots
)

// LineError describes a CLUSTER NODES line that was skipped.
type LineError struct {
	Line   int // 1-based
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("topology: line %d skipped: %s", e.Line, e.Reason)
}

// Parse builds a Topology from a CLUSTER NODES reply. Malformed lines are
// skipped and reported in the returned slice; they never abort the parse.
//
// Replica lines record their address under the id of the master they follow.
// Each slot token on a master line (min-max or a single slot) becomes one
// ServerNode. Migration tokens such as [93->-<id>] are ignored. When two ranges
// start at the same slot the later line wins.
func Parse(text string) (Topology, []error) {
	var errs []error
	byMin := make(map[int]ServerNode)
	replicas := make(map[string]string)

	for i, line := range strings.Split(text, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		skip := func(reason string) {
			errs = append(errs, &LineError{Line: i + 1, Reason: reason})
		}
		if len(fields) <= fieldFlags {
			skip("too few fields")
			continue
		}

		flags := strings.Split(fields[fieldFlags], ",")
		if hasFlag(flags, "noaddr") || hasFlag(flags, "handshake") {
			continue
		}
		addr := hostPort(fields[fieldAddr])
		if addr == "" {
			skip("empty address")
			continue
		}

		if !hasFlag(flags, "master") {
			if len(fields) <= fieldMaster || fields[fieldMaster] == "-" {
				skip("replica without master id")
				continue
			}
			replicas[fields[fieldMaster]] = addr
			continue
		}

		parsed := 0
		for _, tok := range fields[min(fieldSlots, len(fields)):] {
			if strings.HasPrefix(tok, "[") {
				continue
			}
			r, err := parseRange(tok)
			if err != nil {
				skip(err.Error())
				continue
			}
			byMin[r.Min] = ServerNode{ID: fields[fieldID], MasterAddr: addr, Slots: r}
			parsed++
		}
		if parsed == 0 && len(fields) <= fieldSlots {
			skip("master without slots")
		}
	}

	mins := make([]int, 0, len(byMin))
	for m := range byMin {
		mins = append(mins, m)
	}
	sort.Ints(mins)

	t := Topology{Nodes: make([]ServerNode, 0, len(mins))}
	for _, m := range mins {
		n := byMin[m]
		n.ReplicaAddr = replicas[n.ID]
		t.Nodes = append(t.Nodes, n)
	}
	return t, errs
}

func parseRange(tok string) (SlotRange, error) {
	lo, hi, isRange := strings.Cut(tok, "-")
	minSlot, err := strconv.Atoi(lo)
	if err != nil {
		return SlotRange{}, fmt.Errorf("bad slot token %q", tok)
	}
	maxSlot := minSlot
	if isRange {
		if maxSlot, err = strconv.Atoi(hi); err != nil {
			return SlotRange{}, fmt.Errorf("bad slot token %q", tok)
		}
	}
	if minSlot < 0 || maxSlot > MaxSlot || minSlot > maxSlot {
		return SlotRange{}, errors.New("slot range out of bounds: " + tok)
	}
	return SlotRange{Min: minSlot, Max: maxSlot}, nil
}

// hostPort strips the cluster bus port and hostname: "10.0.0.1:7000@17000,db-1".
func hostPort(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		addr = addr[:i]
	}
	if strings.HasPrefix(addr, ":") {
		return ""
	}
	return addr
}

func hasFlag(flags []string, want string) bool {
	for _, f := range flags {
		if f == want {
			return true
		}
	}
	return false
}
