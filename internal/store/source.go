package store

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"orbit-backend/internal/metadata"
)

// RelationSource adapts the SQL store to the relation package's data-source
// capability: key-equality lookups against a target entity's table.
// Identical lookups issued concurrently (many owner records pointing at one
// associated record) collapse into a single query. Two rows are read per
// lookup so a cardinality violation in the data shows up as a second
// element instead of being silently hidden.
type RelationSource struct {
	Store    *Store
	Registry *metadata.Registry

	flight singleflight.Group
}

func NewRelationSource(s *Store, reg *metadata.Registry) *RelationSource {
	return &RelationSource{Store: s, Registry: reg}
}

// FetchByKey returns the rows of entity whose keyField equals key. Zero rows
// is a successful empty result.
func (rs *RelationSource) FetchByKey(ctx context.Context, entity string, keyField string, key any) ([]map[string]any, error) {
	flightKey := fmt.Sprintf("%s\x00%s\x00%v", entity, keyField, key)
	v, err, _ := rs.flight.Do(flightKey, func() (any, error) {
		return rs.fetch(ctx, entity, keyField, key)
	})
	if err != nil {
		return nil, err
	}
	return v.([]map[string]any), nil
}

func (rs *RelationSource) fetch(ctx context.Context, entity string, keyField string, key any) ([]map[string]any, error) {
	target := rs.Registry.GetEntity(entity)
	if target == nil {
		return nil, fmt.Errorf("fetch %s: unknown entity", entity)
	}

	pb := rs.Store.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s LIMIT 2",
		strings.Join(target.FieldNames(), ", "), target.Table, keyField, pb.Add(key))

	rows, err := QueryRows(ctx, rs.Store.DB, sqlStr, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("fetch %s by %s: %w", entity, keyField, err)
	}
	return rows, nil
}
