package relation

import (
	"context"
	"sync"
)

// State describes where a bound collection is in its load lifecycle.
// "Unbound" has no representation here: it is the absence of a collection
// on the owner record's slot.
type State int

const (
	// StateLoading: created, initial (or retried) load not yet settled.
	// A failed load leaves the collection here so a later request retries.
	StateLoading State = iota
	// StateLoadedEmpty: load settled with zero elements.
	StateLoadedEmpty
	// StateLoadedPresent: load settled with exactly one element.
	StateLoadedPresent
)

func (s State) String() string {
	switch s {
	case StateLoadedEmpty:
		return "loaded-empty"
	case StateLoadedPresent:
		return "loaded-present"
	default:
		return "loading"
	}
}

// Collection is a loadable record collection bound to exactly one owner
// record. It conceptually holds zero or one rows of the target entity,
// keyed by the owner's foreign-key value. The collection lives on the owner
// record's slot map and is never shared: two owner records, or two
// relations on one record, always get distinct instances.
type Collection struct {
	target   string     // associated entity name
	keyField string     // key field on the target entity
	key      func() any // reads the owner's foreign-key value at load time
	source   Source

	mu       sync.Mutex
	elems    []map[string]any
	state    State
	gen      uint64 // bumped by every mutation; stale loads check it
	inflight bool
	pending  []LoadOptions // callbacks joined to the in-flight fetch
}

func newCollection(target, keyField string, key func() any, src Source) *Collection {
	return &Collection{
		target:   target,
		keyField: keyField,
		key:      key,
		source:   src,
		state:    StateLoading,
	}
}

// Load populates the collection from the data source. The call returns
// before the fetch settles; results become visible through the collection
// and through the options' callbacks.
//
// At most one fetch is ever in flight per collection: a load requested
// while one is out joins it instead of starting a second, and a load
// requested after a settle is answered from the cached contents unless
// Reload is set.
//
// A mutation (RemoveAll/Add) racing an in-flight load wins: the load's
// result is discarded if the collection changed after the fetch started.
func (c *Collection) Load(ctx context.Context, opts LoadOptions) {
	c.mu.Lock()
	if !opts.Reload && c.state != StateLoading && !c.inflight {
		c.mu.Unlock()
		opts.deliver(c, nil)
		return
	}

	key := c.key()
	if key == nil && !c.inflight {
		// Foreign key unset: a successful empty load, no source round trip.
		c.elems = c.elems[:0]
		c.state = StateLoadedEmpty
		c.mu.Unlock()
		opts.deliver(c, nil)
		return
	}

	c.pending = append(c.pending, opts)
	if c.inflight {
		c.mu.Unlock()
		return
	}
	c.inflight = true
	gen := c.gen
	c.mu.Unlock()

	go func() {
		rows, err := c.source.FetchByKey(ctx, c.target, c.keyField, key)

		c.mu.Lock()
		joined := c.pending
		c.pending = nil
		c.inflight = false
		if err == nil && c.gen == gen {
			c.elems = c.elems[:0]
			if len(rows) > 0 {
				c.elems = append(c.elems, rows[0])
			}
			if len(c.elems) == 0 {
				c.state = StateLoadedEmpty
			} else {
				c.state = StateLoadedPresent
			}
		}
		// On error the state stays at loading so a later request retries.
		c.mu.Unlock()

		for _, o := range joined {
			o.deliver(c, err)
		}
	}()
}

// RemoveAll drops every element. The collection settles as loaded-empty and
// any load still in flight is invalidated.
func (c *Collection) RemoveAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elems = c.elems[:0]
	c.state = StateLoadedEmpty
	c.gen++
}

// Add appends one element and invalidates any in-flight load.
func (c *Collection) Add(row map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elems = append(c.elems, row)
	c.state = StateLoadedPresent
	c.gen++
}

// First returns the first element, or false when none is held. It never
// triggers a load: before the initial load settles this simply reports
// absent.
func (c *Collection) First() (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.elems) == 0 {
		return nil, false
	}
	return c.elems[0], true
}

// Len returns the number of elements currently held.
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.elems)
}

// State returns the collection's load state.
func (c *Collection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
