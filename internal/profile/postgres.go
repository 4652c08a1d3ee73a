package profile

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"courtboard/internal/identity"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the profile table migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	// goose works on *sql.DB; this one shares the pool and is closed here.
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// PostgresDirectory keeps profiles in the profiles table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory returns a directory over pool. Call Migrate first.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, userID string) (Profile, error) {
	query := `
		SELECT name, level
		FROM profiles
		WHERE user_id = $1
	`
	var p Profile
	err := d.pool.QueryRow(ctx, query, userID).Scan(&p.Name, &p.Level)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Profile{}, ErrNotFound
		}
		return Profile{}, fmt.Errorf("lookup profile %s: %w", userID, err)
	}
	return p, nil
}

func (d *PostgresDirectory) Save(ctx context.Context, userID string, p Profile) error {
	if err := identity.Check(userID); err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return err
	}
	query := `
		INSERT INTO profiles (user_id, name, level)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
		SET name = EXCLUDED.name, level = EXCLUDED.level, updated_at = now()
	`
	if _, err := d.pool.Exec(ctx, query, userID, p.Name, p.Level); err != nil {
		return fmt.Errorf("save profile %s: %w", userID, err)
	}
	return nil
}
