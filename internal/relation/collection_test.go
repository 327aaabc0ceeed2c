package relation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// fakeSource is an in-memory data source. rows are keyed by the stringified
// lookup key; gate, when set, blocks fetches until released so tests can
// hold a load in flight.
type fakeSource struct {
	mu    sync.Mutex
	calls []fetchCall
	rows  map[string][]map[string]any
	err   error
	gate  chan struct{}
}

type fetchCall struct {
	entity   string
	keyField string
	key      any
}

func (f *fakeSource) FetchByKey(ctx context.Context, entity, keyField string, key any) ([]map[string]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{entity, keyField, key})
	gate := f.gate
	err := f.err
	rows := f.rows[fmt.Sprintf("%v", key)]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// loadAndWait runs a load and blocks until it settles.
func loadAndWait(t *testing.T, c *Collection, opts LoadOptions) error {
	t.Helper()
	done := make(chan error, 1)
	cb := opts.Callback
	opts.Callback = func(col *Collection, err error) {
		if cb != nil {
			cb(col, err)
		}
		done <- err
	}
	c.Load(context.Background(), opts)
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("load did not settle")
		return nil
	}
}

func addressSource() *fakeSource {
	return &fakeSource{rows: map[string][]map[string]any{
		"20": {{"id": 20, "street": "1 Main St"}},
	}}
}

func TestCollectionLoad_Present(t *testing.T) {
	src := addressSource()
	key := any(20)
	c := newCollection("Address", "id", func() any { return key }, src)

	if c.State() != StateLoading {
		t.Fatalf("fresh collection must be loading, got %v", c.State())
	}
	if _, ok := c.First(); ok {
		t.Fatal("First before load must report absent")
	}

	if err := loadAndWait(t, c, LoadOptions{}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.State() != StateLoadedPresent {
		t.Fatalf("expected loaded-present, got %v", c.State())
	}
	row, ok := c.First()
	if !ok || row["street"] != "1 Main St" {
		t.Fatalf("expected loaded row, got %v (ok=%v)", row, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 element, got %d", c.Len())
	}
}

func TestCollectionLoad_EmptyResultIsNotAnError(t *testing.T) {
	src := &fakeSource{rows: map[string][]map[string]any{}}
	key := any(99)
	c := newCollection("Address", "id", func() any { return key }, src)

	var failures int
	err := loadAndWait(t, c, LoadOptions{
		Failure: func(error) { failures++ },
	})
	if err != nil {
		t.Fatalf("empty result must settle cleanly, got %v", err)
	}
	if failures != 0 {
		t.Fatal("failure callback must not fire for an empty result")
	}
	if c.State() != StateLoadedEmpty {
		t.Fatalf("expected loaded-empty, got %v", c.State())
	}
}

func TestCollectionLoad_NilKeySkipsSource(t *testing.T) {
	src := addressSource()
	c := newCollection("Address", "id", func() any { return nil }, src)

	if err := loadAndWait(t, c, LoadOptions{}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.State() != StateLoadedEmpty {
		t.Fatalf("expected loaded-empty, got %v", c.State())
	}
	if src.callCount() != 0 {
		t.Fatalf("unset foreign key must not hit the source, got %d calls", src.callCount())
	}
}

func TestCollectionLoad_FailureStaysRetryable(t *testing.T) {
	src := addressSource()
	src.err = errors.New("store down")
	key := any(20)
	c := newCollection("Address", "id", func() any { return key }, src)

	var failure error
	var success int
	err := loadAndWait(t, c, LoadOptions{
		Success: func(*Collection) { success++ },
		Failure: func(e error) { failure = e },
	})
	if err == nil || failure == nil {
		t.Fatal("expected the failure path to fire")
	}
	if success != 0 {
		t.Fatal("success callback must not fire on failure")
	}
	if c.State() != StateLoading {
		t.Fatalf("failed load must leave state at loading, got %v", c.State())
	}

	// Source recovers; the next load succeeds.
	src.mu.Lock()
	src.err = nil
	src.mu.Unlock()
	if err := loadAndWait(t, c, LoadOptions{}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if c.State() != StateLoadedPresent {
		t.Fatalf("expected loaded-present after retry, got %v", c.State())
	}
}

func TestCollectionLoad_CachedWithoutReload(t *testing.T) {
	src := addressSource()
	key := any(20)
	c := newCollection("Address", "id", func() any { return key }, src)

	if err := loadAndWait(t, c, LoadOptions{}); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := loadAndWait(t, c, LoadOptions{}); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if src.callCount() != 1 {
		t.Fatalf("settled collection must not refetch without Reload, got %d calls", src.callCount())
	}

	if err := loadAndWait(t, c, LoadOptions{Reload: true}); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if src.callCount() != 2 {
		t.Fatalf("Reload must refetch, got %d calls", src.callCount())
	}
}

func TestCollectionLoad_ConcurrentLoadsShareOneFetch(t *testing.T) {
	src := addressSource()
	src.gate = make(chan struct{})
	key := any(20)
	c := newCollection("Address", "id", func() any { return key }, src)

	settled := make(chan error, 2)
	cb := func(_ *Collection, err error) { settled <- err }
	c.Load(context.Background(), LoadOptions{Callback: cb})
	c.Load(context.Background(), LoadOptions{Callback: cb})

	close(src.gate)
	for i := 0; i < 2; i++ {
		select {
		case err := <-settled:
			if err != nil {
				t.Fatalf("load %d: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("load did not settle")
		}
	}

	if src.callCount() != 1 {
		t.Fatalf("concurrent loads must share one fetch, got %d", src.callCount())
	}
	if c.State() != StateLoadedPresent {
		t.Fatalf("expected loaded-present, got %v", c.State())
	}
}

func TestCollectionMutationBeatsInflightLoad(t *testing.T) {
	src := addressSource()
	src.gate = make(chan struct{})
	key := any(20)
	c := newCollection("Address", "id", func() any { return key }, src)

	settled := make(chan error, 1)
	c.Load(context.Background(), LoadOptions{
		Callback: func(_ *Collection, err error) { settled <- err },
	})

	// Mutate while the fetch is held in flight.
	c.RemoveAll()
	c.Add(map[string]any{"id": 77, "street": "9 Side St"})

	close(src.gate)
	select {
	case <-settled:
	case <-time.After(2 * time.Second):
		t.Fatal("load did not settle")
	}

	row, ok := c.First()
	if !ok || row["id"] != 77 {
		t.Fatalf("mutation must win over the stale load, got %v (ok=%v)", row, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 element, got %d", c.Len())
	}
}

func TestCollectionRemoveAllAndAdd(t *testing.T) {
	src := addressSource()
	key := any(20)
	c := newCollection("Address", "id", func() any { return key }, src)

	c.Add(map[string]any{"id": 1})
	if c.State() != StateLoadedPresent {
		t.Fatalf("expected loaded-present after add, got %v", c.State())
	}
	c.RemoveAll()
	if c.State() != StateLoadedEmpty || c.Len() != 0 {
		t.Fatalf("expected empty collection, state=%v len=%d", c.State(), c.Len())
	}
}

func TestStateString(t *testing.T) {
	if StateLoading.String() != "loading" ||
		StateLoadedEmpty.String() != "loaded-empty" ||
		StateLoadedPresent.String() != "loaded-present" {
		t.Fatal("state strings drifted")
	}
}
