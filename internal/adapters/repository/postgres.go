package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/poyrazK/adminguard/internal/core/domain"
	"github.com/poyrazK/adminguard/internal/core/ports"
)

// PostgresRepository implements ports.AuthorityStore using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

var _ ports.AuthorityStore = (*PostgresRepository)(nil)

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetAllAdmins returns every user whose admin flag is set, ordered by id.
func (r *PostgresRepository) GetAllAdmins(ctx context.Context) ([]domain.AdminRoleRecord, error) {
	query := `SELECT id FROM users WHERE is_admin = TRUE ORDER BY id`
	rows, errQuery := r.db.QueryContext(ctx, query)
	if errQuery != nil {
		return nil, fmt.Errorf("query admins: %w", errQuery)
	}
	defer func() { if errClose := rows.Close(); errClose != nil { log.Printf("failed to close rows: %v", errClose) } }()

	var admins []domain.AdminRoleRecord
	for rows.Next() {
		rec := domain.AdminRoleRecord{IsAdmin: true}
		if errScan := rows.Scan(&rec.UserID); errScan != nil {
			return nil, errScan
		}
		admins = append(admins, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return admins, nil
}

// SetAdminFlag upserts the user row so that an id never seen by the bot can still be promoted.
func (r *PostgresRepository) SetAdminFlag(ctx context.Context, userID int64, isAdmin bool) error {
	query := `INSERT INTO users (id, is_admin, added_at) VALUES ($1, $2, NOW())
			  ON CONFLICT (id) DO UPDATE SET is_admin = EXCLUDED.is_admin`
	if _, err := r.db.ExecContext(ctx, query, userID, isAdmin); err != nil {
		return fmt.Errorf("set admin flag for %d: %w", userID, err)
	}
	return nil
}

// GetUser returns nil, nil when the user does not exist.
func (r *PostgresRepository) GetUser(ctx context.Context, userID int64) (*domain.User, error) {
	query := `SELECT id, username, first_name, last_name, is_admin, added_at FROM users WHERE id = $1`
	var u domain.User
	var username, firstName, lastName sql.NullString
	errRow := r.db.QueryRowContext(ctx, query, userID).Scan(&u.ID, &username, &firstName, &lastName, &u.IsAdmin, &u.AddedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	u.Username = username.String
	u.FirstName = firstName.String
	u.LastName = lastName.String
	return &u, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
