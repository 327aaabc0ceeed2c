// Package record provides the runtime record type the relation resolver
// operates on: a mutable field map plus named instance-local slots. Slots
// hold per-record caches (bound relation collections) and live exactly as
// long as the record itself.
package record

import (
	"sync"

	"github.com/google/uuid"
)

type Record struct {
	mu     sync.RWMutex
	fields map[string]any
	slots  map[string]any
}

// New wraps a row in a Record. The map is used directly, not copied; callers
// hand over ownership.
func New(fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{fields: fields}
}

// NewWithID wraps a row and mints a UUID under the given primary key field
// if the row does not carry one.
func NewWithID(fields map[string]any, pkField string) *Record {
	r := New(fields)
	if r.Get(pkField) == nil {
		r.Set(pkField, uuid.NewString())
	}
	return r
}

// Get returns the value of a field, or nil.
func (r *Record) Get(name string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fields[name]
}

// Set assigns a field value.
func (r *Record) Set(name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[name] = v
}

// Fields returns a copy of the field map.
func (r *Record) Fields() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Slot returns the named instance-local slot, or nil if never set.
func (r *Record) Slot(name string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.slots[name]
}

// EnsureSlot returns the named slot, calling create and installing its
// result on first use. Create runs under the record lock, so two callers
// racing on the same slot still observe one value.
func (r *Record) EnsureSlot(name string, create func() any) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.slots == nil {
		r.slots = make(map[string]any)
	}
	if v, ok := r.slots[name]; ok {
		return v
	}
	v := create()
	r.slots[name] = v
	return v
}
