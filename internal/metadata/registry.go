package metadata

import (
	"fmt"
	"sync"
)

// Registry holds all entity and relation metadata for one running app.
// It is created at startup and injected wherever metadata is needed; there
// is no ambient global lookup.
type Registry struct {
	mu        sync.RWMutex
	entities  map[string]*Entity
	relations map[string]map[string]*Relation // owner entity -> relation name -> definition
}

func NewRegistry() *Registry {
	return &Registry{
		entities:  make(map[string]*Entity),
		relations: make(map[string]map[string]*Relation),
	}
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// AllEntities returns all registered entities.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.entities))
	for _, e := range r.entities {
		entities = append(entities, e)
	}
	return entities
}

// RegisterEntity adds or replaces an entity definition.
func (r *Registry) RegisterEntity(e *Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.Name] = e
}

// RegisterRelation derives a Relation from the spec and installs it under
// the owner entity. Unknown source/model entities and duplicate relation
// names are configuration errors: the relation is not registered and the
// error is returned to the registration caller.
func (r *Registry) RegisterRelation(spec RelationSpec) (*Relation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.entities[spec.Source] == nil {
		return nil, fmt.Errorf("relation %q: %w: %s", spec.Name, ErrUnknownSource, spec.Source)
	}

	rel, err := deriveRelation(spec, r.entities[spec.Model])
	if err != nil {
		return nil, err
	}

	byName := r.relations[rel.Source]
	if byName == nil {
		byName = make(map[string]*Relation)
		r.relations[rel.Source] = byName
	}
	if byName[rel.Name] != nil {
		return nil, fmt.Errorf("relation %q on %s: %w", rel.Name, rel.Source, ErrDuplicateRelation)
	}
	byName[rel.Name] = rel
	return rel, nil
}

// GetRelation returns the relation with the given name on the owner entity,
// or nil. The synthesized accessor names are accepted as aliases, so
// "address", "getAddress" and "setAddress" all resolve the same relation.
func (r *Registry) GetRelation(owner, name string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName := r.relations[owner]
	if byName == nil {
		return nil
	}
	if rel := byName[name]; rel != nil {
		return rel
	}
	for _, rel := range byName {
		if rel.GetterName == name || rel.SetterName == name {
			return rel
		}
	}
	return nil
}

// RelationsFor returns all relations declared on the owner entity.
func (r *Registry) RelationsFor(owner string) []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byName := r.relations[owner]
	rels := make([]*Relation, 0, len(byName))
	for _, rel := range byName {
		rels = append(rels, rel)
	}
	return rels
}

// Load replaces all entities and relations in the registry. Called during
// startup and after admin mutations. Relation specs that fail derivation are
// skipped and reported; valid ones are still installed.
func (r *Registry) Load(entities []*Entity, specs []RelationSpec) []error {
	r.mu.Lock()
	r.entities = make(map[string]*Entity, len(entities))
	for _, e := range entities {
		r.entities[e.Name] = e
	}
	r.relations = make(map[string]map[string]*Relation)
	r.mu.Unlock()

	var errs []error
	for _, spec := range specs {
		if _, err := r.RegisterRelation(spec); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
