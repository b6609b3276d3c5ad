package slotkv

import "github.com/unkn0wn-root/slotkv/hooks"

// Hooks receives high-signal events. Implementations MUST be cheap and
// non-blocking; wrap slow ones with hooks/async.
type Hooks = hooks.Hooks

// NopHooks is the default no-op
type NopHooks = hooks.Nop
