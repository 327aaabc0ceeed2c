package store

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Bootstrap creates the system tables and seeds the default admin user,
// atomically. Statements run one at a time; the pgx driver's extended
// protocol rejects multi-statement strings.
func (s *Store) Bootstrap(ctx context.Context) error {
	exists, err := s.Dialect.TableExists(ctx, s.DB, "_users")
	if err != nil {
		return fmt.Errorf("check system tables: %w", err)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin bootstrap: %w", err)
	}
	defer tx.Rollback()

	if !exists {
		for _, stmt := range strings.Split(s.Dialect.SystemTablesSQL(), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("bootstrap system tables: %w", err)
			}
		}
	}
	if err := seedAdminUser(ctx, tx, s.Dialect); err != nil {
		return fmt.Errorf("seed admin user: %w", err)
	}
	return tx.Commit()
}

func seedAdminUser(ctx context.Context, q Querier, dialect Dialect) error {
	var count int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM _users").Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hashBytes, err := bcrypt.GenerateFromPassword([]byte("changeme"), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	pb := dialect.NewParamBuilder()
	sqlStr := fmt.Sprintf(
		"INSERT INTO _users (id, email, password_hash, roles) VALUES (%s, %s, %s, %s)",
		pb.Add(uuid.NewString()), pb.Add("admin@localhost"), pb.Add(string(hashBytes)), pb.Add(`["admin"]`),
	)
	if _, err := q.ExecContext(ctx, sqlStr, pb.Params()...); err != nil {
		return err
	}

	log.Println("WARNING: Default admin user created (admin@localhost / changeme). Change the password immediately.")
	return nil
}
