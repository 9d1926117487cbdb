package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/trinityvector/trinitymemory/internal/vectorindex"
)

func newTestCacheMirror(t *testing.T) *CacheMirror {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	mirror, err := NewCacheMirror(context.Background(), mr.Addr(), "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewCacheMirror failed: %v", err)
	}
	t.Cleanup(func() { mirror.Close() })
	return mirror
}

func TestCacheMirrorPutGet(t *testing.T) {
	mirror := newTestCacheMirror(t)
	ctx := context.Background()

	results := []vectorindex.Result{{ID: "e1", Score: 0.9}, {ID: "e2", Score: 0.5}}
	mirror.Put(ctx, 42, 5, results)

	got, ok := mirror.Get(ctx, 42, 5)
	if !ok {
		t.Fatalf("expected cache mirror hit")
	}
	if len(got) != 2 || got[0].ID != "e1" {
		t.Fatalf("round-tripped results mismatch: %+v", got)
	}
}

func TestCacheMirrorGetMiss(t *testing.T) {
	mirror := newTestCacheMirror(t)
	ctx := context.Background()

	_, ok := mirror.Get(ctx, 999, 5)
	if ok {
		t.Fatalf("expected cache mirror miss for unwritten key")
	}
}

func TestCacheMirrorClear(t *testing.T) {
	mirror := newTestCacheMirror(t)
	ctx := context.Background()

	mirror.Put(ctx, 1, 5, []vectorindex.Result{{ID: "e1", Score: 0.9}})
	mirror.Put(ctx, 2, 5, []vectorindex.Result{{ID: "e2", Score: 0.8}})

	mirror.Clear(ctx)

	if _, ok := mirror.Get(ctx, 1, 5); ok {
		t.Fatalf("expected key 1 cleared")
	}
	if _, ok := mirror.Get(ctx, 2, 5); ok {
		t.Fatalf("expected key 2 cleared")
	}
}
