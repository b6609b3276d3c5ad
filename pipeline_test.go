package slotkv

import (
	"context"
	"errors"
	"testing"
)

func TestClusterPipelineIsEmulated(t *testing.T) {
	n := newClusterNet(fullNodes)
	c := newTestClient(t, n, nil)
	ctx := context.Background()

	p := c.Pipeline()
	if _, ok := p.(*emulatedPipeline); !ok {
		t.Fatalf("cluster pipeline is %T", p)
	}
	p.Set(ctx, "bar", "1", 0)
	p.Set(ctx, "foo", "2", 0)
	p.Get(ctx, "bar")
	p.Get(ctx, "hello")
	p.Push(ctx, "list", "x", true)
	if p.Len() != 5 {
		t.Fatalf("len=%d", p.Len())
	}

	// executed immediately, on the owning nodes
	if !n.server(addrA).has("bar") || !n.server(addrB).has("foo") {
		t.Fatalf("commands were not routed per key")
	}

	res, err := p.Exec(ctx)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(res) != 5 {
		t.Fatalf("results=%d", len(res))
	}
	if res[0].Val != true || res[1].Val != true {
		t.Fatalf("set results %+v %+v", res[0], res[1])
	}
	if res[2].Val != "1" {
		t.Fatalf("get bar=%+v", res[2])
	}
	if res[3].Val != nil || res[3].Err != nil {
		t.Fatalf("miss should be nil value, got %+v", res[3])
	}
	if res[4].Val != int64(1) {
		t.Fatalf("push=%+v", res[4])
	}

	if again, _ := p.Exec(ctx); len(again) != 0 {
		t.Fatalf("Exec on idle pipeline returned %+v", again)
	}
}

func TestEmulatedPipelineRecordsRoutingErrors(t *testing.T) {
	n := newClusterNet(gapNodes)
	c := newTestClient(t, n, nil)
	ctx := context.Background()

	p := c.Pipeline()
	p.Set(ctx, "bar", "1", 0)
	p.Get(ctx, "foo") // unowned slot
	p.Get(ctx, "bar")
	res, err := p.Exec(ctx)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if len(res) != 3 {
		t.Fatalf("results=%d", len(res))
	}
	if !errors.Is(res[1].Err, ErrSlotUnowned) {
		t.Fatalf("want slot error in position 1, got %+v", res[1])
	}
	if res[2].Val != "1" {
		t.Fatalf("later command affected by earlier failure: %+v", res[2])
	}
}

func TestEmulatedPipelineDropsResultsWhenIdle(t *testing.T) {
	n := newClusterNet(fullNodes)
	c := newTestClient(t, n, nil)
	ctx := context.Background()

	p := c.Pipeline()
	_, _ = p.Exec(ctx)
	p.Set(ctx, "foo", "v", 0)
	if p.Len() != 0 {
		t.Fatalf("idle pipeline buffered a result")
	}
	if !n.server(addrB).has("foo") {
		t.Fatalf("idle command did not run")
	}

	p.Begin()
	p.Get(ctx, "foo")
	res, _ := p.Exec(ctx)
	if len(res) != 1 || res[0].Val != "v" {
		t.Fatalf("res=%+v", res)
	}
}

func TestSingleNodeNativePipeline(t *testing.T) {
	n := newFakeNet(addrA)
	n.batching = true
	c := newTestClient(t, n, func(o *Options) { o.KeyPrefix = "p:" })
	ctx := context.Background()

	p := c.Pipeline()
	if _, ok := p.(*nativePipeline); !ok {
		t.Fatalf("single-node pipeline with Batcher is %T", p)
	}
	p.Set(ctx, "a", "1", 0)
	p.Get(ctx, "a")
	p.Get(ctx, "missing")
	p.HSet(ctx, "h", "f", "v")
	p.Push(ctx, "l", "x", false)
	p.Pop(ctx, "l", true)
	p.Do(ctx, "", "ECHO", "hi")

	if n.server(addrA).has("p:a") {
		t.Fatalf("native pipeline executed before Exec")
	}
	res, err := p.Exec(ctx)
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if got := n.server(addrA).batches.Load(); got != 1 {
		t.Fatalf("round trips=%d", got)
	}
	if len(res) != 7 {
		t.Fatalf("results=%d", len(res))
	}
	if res[0].Val != true || res[1].Val != "1" || res[2].Val != nil || res[3].Val != int64(1) ||
		res[4].Val != int64(1) || res[5].Val != "x" || res[6].Val != "hi" {
		t.Fatalf("unexpected results %+v", res)
	}
	if !n.server(addrA).has("p:a") {
		t.Fatalf("prefix not applied in native pipeline")
	}

	if again, _ := p.Exec(ctx); len(again) != 0 {
		t.Fatalf("Exec on idle pipeline returned %+v", again)
	}
	if got := n.server(addrA).batches.Load(); got != 1 {
		t.Fatalf("idle Exec hit the server")
	}
}

func TestSingleNodeWithoutBatcherEmulates(t *testing.T) {
	n := newFakeNet(addrA)
	c := newTestClient(t, n, nil)
	ctx := context.Background()

	p := c.Pipeline()
	if _, ok := p.(*emulatedPipeline); !ok {
		t.Fatalf("pipeline without Batcher is %T", p)
	}
	p.Set(ctx, "a", "1", 0)
	p.Get(ctx, "a")
	res, err := p.Exec(ctx)
	if err != nil || len(res) != 2 || res[1].Val != "1" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}
