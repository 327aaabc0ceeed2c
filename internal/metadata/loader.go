package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
)

// Querier is the slice of database/sql this loader needs. *sql.DB and
// *sql.Tx both satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// LoadAll reads all entities and relation specs from the database and
// populates the registry.
func LoadAll(ctx context.Context, db Querier, reg *Registry) error {
	entities, err := loadEntities(ctx, db)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}

	specs, err := loadRelationSpecs(ctx, db)
	if err != nil {
		return fmt.Errorf("load relations: %w", err)
	}

	errs := reg.Load(entities, specs)
	for _, e := range errs {
		log.Printf("WARN: skipping relation: %v", e)
	}

	log.Printf("Loaded %d entities, %d relations into registry",
		len(entities), len(specs)-len(errs))
	return nil
}

// Reload re-reads the system tables and replaces the registry contents.
// Exposed over the API so definition changes take effect without a restart.
func Reload(ctx context.Context, db Querier, reg *Registry) error {
	return LoadAll(ctx, db, reg)
}

func loadEntities(ctx context.Context, db Querier) ([]*Entity, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, definition FROM _entities ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*Entity
	for rows.Next() {
		var name string
		var defJSON []byte
		if err := rows.Scan(&name, &defJSON); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}

		var entity Entity
		if err := json.Unmarshal(defJSON, &entity); err != nil {
			log.Printf("WARN: skipping entity %s (invalid JSON): %v", name, err)
			continue
		}
		entities = append(entities, &entity)
	}
	return entities, rows.Err()
}

func loadRelationSpecs(ctx context.Context, db Querier) ([]RelationSpec, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, definition FROM _relations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var specs []RelationSpec
	for rows.Next() {
		var name string
		var defJSON []byte
		if err := rows.Scan(&name, &defJSON); err != nil {
			return nil, fmt.Errorf("scan relation row: %w", err)
		}

		var spec RelationSpec
		if err := json.Unmarshal(defJSON, &spec); err != nil {
			log.Printf("WARN: skipping relation %s (invalid JSON): %v", name, err)
			continue
		}
		specs = append(specs, spec)
	}
	return specs, rows.Err()
}
