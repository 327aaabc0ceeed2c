package metadata

import (
	"errors"
	"fmt"

	"github.com/go-openapi/inflect"
)

const TypeHasOne = "hasOne"

// Configuration errors. Raised at relation-definition time, never at access
// time: a relation that fails these checks is not registered at all.
var (
	ErrUnknownModel       = errors.New("unknown associated model")
	ErrUnknownSource      = errors.New("unknown source entity")
	ErrDuplicateRelation  = errors.New("duplicate relation name")
	ErrUnsupportedRelType = errors.New("unsupported relation type")
)

// RelationSpec is the registration surface for a relation: what an admin (or
// the _relations system table) declares. All derivable attributes are
// optional.
type RelationSpec struct {
	Type       string `json:"type"`   // "hasOne"
	Source     string `json:"source"` // owner entity name
	Model      string `json:"model"`  // associated entity name
	Name       string `json:"name,omitempty"`
	PrimaryKey string `json:"primary_key,omitempty"`
	ForeignKey string `json:"foreign_key,omitempty"`
}

// Relation is the fully derived, immutable definition of one single-valued
// relation between an owner entity type and an associated entity type.
// Built once at registration time via Registry.RegisterRelation.
type Relation struct {
	Name       string // relation name, e.g. "address"
	Source     string // owner entity name
	Target     string // associated entity name
	PrimaryKey string // key field on the associated entity
	ForeignKey string // field on the owner holding the associated PK
	StoreName  string // per-record slot identifier for the bound collection
	GetterName string // synthesized accessor alias, e.g. "getAddress"
	SetterName string // synthesized mutator alias, e.g. "setAddress"
}

// deriveRelation builds a Relation from a spec, resolving defaults against
// the associated entity's metadata. Name collisions are the registry's job;
// derivation itself is deterministic.
func deriveRelation(spec RelationSpec, target *Entity) (*Relation, error) {
	if spec.Type != TypeHasOne {
		return nil, fmt.Errorf("relation %q: %w: %s", spec.Name, ErrUnsupportedRelType, spec.Type)
	}
	if target == nil {
		return nil, fmt.Errorf("relation %q: %w: %s", spec.Name, ErrUnknownModel, spec.Model)
	}

	name := DeriveName(spec.Name, spec.Model)

	pk := spec.PrimaryKey
	if pk == "" {
		pk = target.PKField()
	}

	fk := spec.ForeignKey
	if fk == "" {
		fk = DeriveForeignKey(name)
	}

	camel := inflect.Camelize(name)
	return &Relation{
		Name:       name,
		Source:     spec.Source,
		Target:     spec.Model,
		PrimaryKey: pk,
		ForeignKey: fk,
		StoreName:  name + "HasOneStore",
		GetterName: "get" + camel,
		SetterName: "set" + camel,
	}, nil
}

// DeriveName returns the explicit name when given, otherwise the lower-cased
// associated-model name ("Address" -> "address", "OrderItem" -> "orderItem").
func DeriveName(explicit, model string) string {
	if explicit != "" {
		return explicit
	}
	return inflect.CamelizeDownFirst(model)
}

// DeriveForeignKey returns the conventional owner-side foreign key field for
// a relation name ("address" -> "address_id").
func DeriveForeignKey(name string) string {
	return inflect.Underscore(name) + "_id"
}
