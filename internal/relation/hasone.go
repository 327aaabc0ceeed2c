// Package relation implements single-valued ("hasOne") relation resolution
// between entity records: deriving the foreign-key linkage, lazily loading
// the associated record through a data source, and caching it on the owner
// record in a per-record bound collection.
//
// The single-valued case is deliberately built on the same loadable
// collection shape as multi-valued relations, constrained to hold at most
// one element, instead of a parallel one-to-one implementation with its own
// cache. The bound collection lives on the owner record and dies with it.
package relation

import (
	"context"
	"fmt"

	"orbit-backend/internal/metadata"
	"orbit-backend/internal/record"
)

// HasOne resolves one relation definition against owner records. It is
// created once per (owner type, relation) at registration time and is safe
// for concurrent use; all per-record state lives on the records themselves.
type HasOne struct {
	def    *metadata.Relation
	source Source
}

// Define registers the relation spec with the registry and wraps the derived
// definition in a resolver. Registration failures (unknown model, duplicate
// name) are configuration errors: no resolver is produced and nothing is
// installed.
func Define(spec metadata.RelationSpec, reg *metadata.Registry, src Source) (*HasOne, error) {
	def, err := reg.RegisterRelation(spec)
	if err != nil {
		return nil, err
	}
	return NewHasOne(def, src), nil
}

// NewHasOne wraps an already-registered definition.
func NewHasOne(def *metadata.Relation, src Source) *HasOne {
	return &HasOne{def: def, source: src}
}

// Definition returns the immutable derived relation definition.
func (h *HasOne) Definition() *metadata.Relation { return h.def }

// Bind returns rec's bound collection for this relation, creating it and
// triggering the initial load on first call. Repeated calls for the same
// record return the identical collection instance; the in-flight initial
// load is shared, never restarted.
func (h *HasOne) Bind(ctx context.Context, rec *record.Record) *Collection {
	created := false
	v := rec.EnsureSlot(h.def.StoreName, func() any {
		created = true
		return newCollection(h.def.Target, h.def.PrimaryKey, func() any {
			return rec.Get(h.def.ForeignKey)
		}, h.source)
	})
	c := v.(*Collection)
	if created {
		c.Load(ctx, LoadOptions{})
	}
	return c
}

// Get returns the currently cached associated row, or false when none is
// held. It binds the collection if needed but never forces a fresh fetch:
// immediately after the very first bind this can report absent, with the
// value appearing once the initial load settles.
func (h *HasOne) Get(ctx context.Context, rec *record.Record) (map[string]any, bool) {
	return h.Bind(ctx, rec).First()
}

// Fetch is the callback-driven accessor: it binds the collection and
// forwards the load request, so the caller's success/failure/callback
// functions fire when the load settles (immediately, when already loaded
// and Reload is unset).
func (h *HasOne) Fetch(ctx context.Context, rec *record.Record, opts LoadOptions) *Collection {
	c := h.Bind(ctx, rec)
	c.Load(ctx, opts)
	return c
}

// Set replaces the associated record. The value may be a raw primary-key
// value, a row map, or a *record.Record; nil clears the relation. The bound
// collection is emptied and reseeded with exactly one element, and the
// owner's foreign-key field is updated to match. A load still in flight
// cannot overwrite the result.
func (h *HasOne) Set(ctx context.Context, rec *record.Record, value any) (map[string]any, error) {
	c := h.Bind(ctx, rec)

	if value == nil {
		c.RemoveAll()
		rec.Set(h.def.ForeignKey, nil)
		return nil, nil
	}

	row, err := h.rowFor(value)
	if err != nil {
		return nil, err
	}

	c.RemoveAll()
	c.Add(row)
	rec.Set(h.def.ForeignKey, row[h.def.PrimaryKey])
	return row, nil
}

// rowFor normalizes a setter argument into an associated row.
func (h *HasOne) rowFor(value any) (map[string]any, error) {
	switch v := value.(type) {
	case map[string]any:
		return v, nil
	case *record.Record:
		return v.Fields(), nil
	case string, int, int32, int64, uint, uint32, uint64, float64:
		return map[string]any{h.def.PrimaryKey: v}, nil
	default:
		return nil, fmt.Errorf("relation %s: unsupported set value type %T", h.def.Name, value)
	}
}
