package engine

import (
	"context"
	"fmt"
	"strings"

	"orbit-backend/internal/metadata"
	"orbit-backend/internal/store"
)

// LoadIncludes eagerly attaches related records to the parent rows. This is
// the batch counterpart of the per-record resolver: one query per relation
// for the whole row set, same derivation metadata, same first-match
// single-valued semantics.
func LoadIncludes(ctx context.Context, s *store.Store, reg *metadata.Registry, entity *metadata.Entity, rows []map[string]any, includes []string) error {
	if len(rows) == 0 || len(includes) == 0 {
		return nil
	}

	for _, incName := range includes {
		rel := reg.GetRelation(entity.Name, incName)
		if rel == nil {
			continue
		}
		if err := attachHasOne(ctx, s, reg, rel, rows); err != nil {
			return err
		}
	}

	return nil
}

// attachHasOne resolves the owner-side foreign keys against the target
// entity's primary key and attaches at most one record per row under the
// relation name (nil when the key is unset or dangling).
func attachHasOne(ctx context.Context, s *store.Store, reg *metadata.Registry, rel *metadata.Relation, rows []map[string]any) error {
	target := reg.GetEntity(rel.Target)
	if target == nil {
		return fmt.Errorf("unknown target entity: %s", rel.Target)
	}

	fkValues := collectValues(rows, rel.ForeignKey)
	if len(fkValues) == 0 {
		for _, row := range rows {
			row[rel.Name] = nil
		}
		return nil
	}

	pb := s.Dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(target.FieldNames(), ", "), target.Table,
		s.Dialect.InExpr(rel.PrimaryKey, pb, fkValues))

	targetRows, err := store.QueryRows(ctx, s.DB, sqlStr, pb.Params()...)
	if err != nil {
		return fmt.Errorf("load include %s: %w", rel.Name, err)
	}

	// Index targets by key
	byKey := make(map[string]map[string]any, len(targetRows))
	for _, tr := range targetRows {
		byKey[fmt.Sprintf("%v", tr[rel.PrimaryKey])] = tr
	}

	for _, row := range rows {
		fk := row[rel.ForeignKey]
		if fk == nil {
			row[rel.Name] = nil
			continue
		}
		if match, ok := byKey[fmt.Sprintf("%v", fk)]; ok {
			row[rel.Name] = match
		} else {
			row[rel.Name] = nil
		}
	}

	return nil
}

func collectValues(rows []map[string]any, field string) []any {
	seen := make(map[string]bool)
	var values []any
	for _, row := range rows {
		v := row[field]
		if v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if !seen[s] {
			seen[s] = true
			values = append(values, v)
		}
	}
	return values
}
