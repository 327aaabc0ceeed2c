package engine

import (
	"context"
	"testing"

	"orbit-backend/internal/metadata"
	"orbit-backend/internal/store"
)

func includeRegistry(t *testing.T) (*metadata.Registry, *metadata.Relation) {
	t.Helper()
	reg := metadata.NewRegistry()
	reg.RegisterEntity(&metadata.Entity{
		Name: "person", Table: "people",
		Fields: []metadata.Field{{Name: "id"}, {Name: "name"}, {Name: "address_id"}},
	})
	reg.RegisterEntity(&metadata.Entity{
		Name: "Address", Table: "addresses",
		Fields: []metadata.Field{{Name: "id"}, {Name: "street"}},
	})
	rel, err := reg.RegisterRelation(metadata.RelationSpec{
		Type: metadata.TypeHasOne, Source: "person", Model: "Address",
	})
	if err != nil {
		t.Fatalf("register relation: %v", err)
	}
	return reg, rel
}

func TestCollectValues(t *testing.T) {
	rows := []map[string]any{
		{"address_id": "a1"},
		{"address_id": nil},
		{"address_id": "a2"},
		{"address_id": "a1"}, // duplicate
	}
	values := collectValues(rows, "address_id")
	if len(values) != 2 {
		t.Fatalf("expected 2 distinct values, got %v", values)
	}
}

func TestAttachHasOne_AllKeysUnset(t *testing.T) {
	reg, rel := includeRegistry(t)
	rows := []map[string]any{
		{"id": "p1", "name": "Ann", "address_id": nil},
		{"id": "p2", "name": "Bob", "address_id": nil},
	}

	// No foreign keys set, so no query is issued against the store.
	if err := attachHasOne(context.Background(), &store.Store{}, reg, rel, rows); err != nil {
		t.Fatalf("attach: %v", err)
	}
	for _, row := range rows {
		v, ok := row[rel.Name]
		if !ok || v != nil {
			t.Fatalf("expected explicit null under %q, got %v", rel.Name, row)
		}
	}
}

func TestAttachHasOne_UnknownTarget(t *testing.T) {
	reg, rel := includeRegistry(t)
	broken := *rel
	broken.Target = "ghost"
	rows := []map[string]any{{"id": "p1", "address_id": "a1"}}
	if err := attachHasOne(context.Background(), &store.Store{}, reg, &broken, rows); err == nil {
		t.Fatal("expected error for unknown target entity")
	}
}

func TestLoadIncludes_SkipsUnknownRelation(t *testing.T) {
	reg, _ := includeRegistry(t)
	entity := reg.GetEntity("person")
	rows := []map[string]any{{"id": "p1", "address_id": nil}}
	if err := LoadIncludes(context.Background(), &store.Store{}, reg, entity, rows, []string{"nonsense"}); err != nil {
		t.Fatalf("unknown includes must be ignored, got %v", err)
	}
	if _, attached := rows[0]["nonsense"]; attached {
		t.Fatal("unknown relation must not attach anything")
	}
}
