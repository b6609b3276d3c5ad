package slotkv

import (
	"errors"
	"fmt"
	"strings"

	"github.com/unkn0wn-root/slotkv/router"
	"github.com/unkn0wn-root/slotkv/topology"
)

var (
	ErrConfiguration = errors.New("slotkv: invalid configuration")
	ErrConnection    = errors.New("slotkv: no server reachable")
	ErrUnsupported   = errors.New("slotkv: operation not supported by store")
	ErrSerialization = errors.New("slotkv: serialization failed")
	ErrClosed        = errors.New("slotkv: client closed")

	// ErrTopologyUnavailable is returned when cluster mode has no usable topology.
	ErrTopologyUnavailable = topology.ErrUnavailable

	ErrEmptyTopology = router.ErrEmptyTopology
	ErrSlotUnowned   = router.ErrSlotUnowned
)

// ConfigError reports a rejected option.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("slotkv: invalid %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrConfiguration }

// ConnectError lists every address that was tried and why it failed.
type ConnectError struct {
	Addrs []string
	Errs  []error
}

func (e *ConnectError) Error() string {
	var b strings.Builder
	b.WriteString("slotkv: connect failed")
	for i, a := range e.Addrs {
		if i < len(e.Errs) && e.Errs[i] != nil {
			fmt.Fprintf(&b, "; %s: %v", a, e.Errs[i])
		} else {
			fmt.Fprintf(&b, "; %s", a)
		}
	}
	return b.String()
}

func (e *ConnectError) Unwrap() []error {
	errs := make([]error, 0, len(e.Errs)+1)
	errs = append(errs, ErrConnection)
	for _, err := range e.Errs {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// UnsupportedError names an operation the connected store cannot serve.
type UnsupportedError struct {
	Op string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("slotkv: store does not support %s", e.Op)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// SerializationError wraps a codec failure. Op is "encode" or "decode".
type SerializationError struct {
	Op  string
	Key string
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("slotkv: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *SerializationError) Unwrap() []error { return []error{ErrSerialization, e.Err} }
