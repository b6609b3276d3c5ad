package slotkv

import (
	"context"
	"errors"
	"testing"

	"github.com/unkn0wn-root/slotkv/codec"
)

type user struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
}

func TestTypedRoundTrip(t *testing.T) {
	n := newClusterNet(fullNodes)
	c := newTestClient(t, n, nil)
	ctx := context.Background()

	for _, cd := range []codec.Codec[user]{codec.JSON[user]{}, codec.Msgpack[user]{}, codec.MustCBOR[user](true)} {
		tc := NewTyped(c, cd)
		in := user{ID: "42", Name: "Ada"}
		if _, err := tc.Set(ctx, "user:42", in, 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
		out, ok, err := tc.Get(ctx, "user:42")
		if err != nil || !ok || out != in {
			t.Fatalf("Get=%+v,%v,%v", out, ok, err)
		}

		if _, err := tc.HSet(ctx, "users", "42", in); err != nil {
			t.Fatal(err)
		}
		if out, ok, _ := tc.HGet(ctx, "users", "42"); !ok || out != in {
			t.Fatalf("HGet=%+v", out)
		}

		if _, err := tc.Push(ctx, "queue", in, true); err != nil {
			t.Fatal(err)
		}
		if out, ok, _ := tc.Pop(ctx, "queue", true); !ok || out != in {
			t.Fatalf("Pop=%+v", out)
		}
		if _, ok, _ := tc.Pop(ctx, "queue", true); ok {
			t.Fatalf("queue should be empty")
		}
	}
}

func TestTypedDecodeError(t *testing.T) {
	n := newFakeNet(addrA)
	c := newTestClient(t, n, nil)
	ctx := context.Background()

	if _, err := c.Set(ctx, "user:1", "not json", 0); err != nil {
		t.Fatal(err)
	}
	_, ok, err := NewTyped[user](c, codec.JSON[user]{}).Get(ctx, "user:1")
	if ok || !errors.Is(err, ErrSerialization) {
		t.Fatalf("want ErrSerialization, got ok=%v err=%v", ok, err)
	}
	var se *SerializationError
	if !errors.As(err, &se) || se.Op != "decode" || se.Key != "user:1" {
		t.Fatalf("unexpected error %#v", err)
	}
}

func TestTypedEncodeError(t *testing.T) {
	n := newFakeNet(addrA)
	c := newTestClient(t, n, nil)

	tc := NewTyped[chan int](c, codec.JSON[chan int]{})
	_, err := tc.Set(context.Background(), "ch", make(chan int), 0)
	var se *SerializationError
	if !errors.As(err, &se) || se.Op != "encode" {
		t.Fatalf("want encode SerializationError, got %v", err)
	}
	if n.server(addrA).has("ch") {
		t.Fatalf("value written despite encode failure")
	}
}
