package slotkv

import (
	"context"
	"time"

	"github.com/unkn0wn-root/slotkv/codec"
)

// Typed stores values of type V through a Codec on top of a Client.
type Typed[V any] struct {
	c     Client
	codec codec.Codec[V]
}

func NewTyped[V any](c Client, cd codec.Codec[V]) *Typed[V] {
	return &Typed[V]{c: c, codec: cd}
}

// Client returns the underlying client.
func (t *Typed[V]) Client() Client { return t.c }

func (t *Typed[V]) Get(ctx context.Context, key string) (V, bool, error) {
	s, ok, err := t.c.Get(ctx, key)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	return t.decode(key, s)
}

func (t *Typed[V]) Set(ctx context.Context, key string, v V, ttl time.Duration) (bool, error) {
	b, err := t.encode(key, v)
	if err != nil {
		return false, err
	}
	return t.c.Set(ctx, key, b, ttl)
}

func (t *Typed[V]) HGet(ctx context.Context, key, field string) (V, bool, error) {
	s, ok, err := t.c.HGet(ctx, key, field)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	return t.decode(key, s)
}

func (t *Typed[V]) HSet(ctx context.Context, key, field string, v V) (int64, error) {
	b, err := t.encode(key, v)
	if err != nil {
		return 0, err
	}
	return t.c.HSet(ctx, key, field, b)
}

func (t *Typed[V]) Push(ctx context.Context, key string, v V, right bool) (int64, error) {
	b, err := t.encode(key, v)
	if err != nil {
		return 0, err
	}
	return t.c.Push(ctx, key, b, right)
}

func (t *Typed[V]) Pop(ctx context.Context, key string, left bool) (V, bool, error) {
	s, ok, err := t.c.Pop(ctx, key, left)
	if err != nil || !ok {
		var zero V
		return zero, false, err
	}
	return t.decode(key, s)
}

func (t *Typed[V]) Publish(ctx context.Context, channel string, v V) (int64, error) {
	b, err := t.encode(channel, v)
	if err != nil {
		return 0, err
	}
	return t.c.Publish(ctx, channel, b)
}

func (t *Typed[V]) encode(key string, v V) ([]byte, error) {
	b, err := t.codec.Encode(v)
	if err != nil {
		return nil, &SerializationError{Op: "encode", Key: key, Err: err}
	}
	return b, nil
}

func (t *Typed[V]) decode(key, s string) (V, bool, error) {
	v, err := t.codec.Decode([]byte(s))
	if err != nil {
		var zero V
		return zero, false, &SerializationError{Op: "decode", Key: key, Err: err}
	}
	return v, true, nil
}
