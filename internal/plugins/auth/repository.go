package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// mysqlDuplicateEntry is the MariaDB error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// PrincipalRepository is the credential store. All SQL lives in the concrete
// implementation -- no SQL leaks out. Every lookup skips inactive principals.
type PrincipalRepository interface {
	Create(ctx context.Context, p *Principal) error
	FindByID(ctx context.Context, id string) (*Principal, error)
	FindByEmail(ctx context.Context, email string) (*Principal, error)

	// FindByResetTokenHash returns the principal holding this reset token
	// hash, provided the token has not expired at now.
	FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*Principal, error)

	// Update applies u to one principal atomically and returns the stored
	// result. Returns apperror.NotFound if the principal is gone or the
	// update's condition no longer holds.
	Update(ctx context.Context, id string, u PrincipalUpdate) (*Principal, error)

	// List returns a page of active principals and the total count.
	List(ctx context.Context, offset, limit int) ([]Principal, int, error)
}

// principalRepository implements PrincipalRepository with hand-written
// MariaDB queries.
type principalRepository struct {
	db *sql.DB
}

// NewPrincipalRepository creates a new repository backed by the given DB pool.
func NewPrincipalRepository(db *sql.DB) PrincipalRepository {
	return &principalRepository{db: db}
}

const principalColumns = `id, email, name, password_hash, role, password_changed_at,
	password_reset_token_hash, password_reset_expires_at, active, created_at`

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrincipal(row rowScanner) (*Principal, error) {
	p := &Principal{}
	err := row.Scan(
		&p.ID,
		&p.Email,
		&p.Name,
		&p.PasswordHash,
		&p.Role,
		&p.PasswordChangedAt,
		&p.PasswordResetTokenHash,
		&p.PasswordResetExpiresAt,
		&p.Active,
		&p.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a new principal row. Returns apperror.Conflict if the
// email is already registered.
func (r *principalRepository) Create(ctx context.Context, p *Principal) error {
	query := `INSERT INTO users (id, email, name, password_hash, role, active, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		p.ID,
		p.Email,
		p.Name,
		p.PasswordHash,
		p.Role,
		p.Active,
		p.CreatedAt,
	)
	if isDuplicate(err) {
		return apperror.NewConflict("an account with this email already exists")
	}
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}

	return nil
}

// FindByID retrieves an active principal by UUID.
// Returns apperror.NotFound if no such principal exists.
func (r *principalRepository) FindByID(ctx context.Context, id string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM users WHERE id = ? AND active = TRUE`

	p, err := scanPrincipal(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}

	return p, nil
}

// FindByEmail retrieves an active principal by normalized email.
// Returns apperror.NotFound if no such principal exists.
func (r *principalRepository) FindByEmail(ctx context.Context, email string) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM users WHERE email = ? AND active = TRUE`

	p, err := scanPrincipal(r.db.QueryRowContext(ctx, query, NormalizeEmail(email)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}

	return p, nil
}

// FindByResetTokenHash looks up the principal that holds an unexpired reset
// token with this hash.
func (r *principalRepository) FindByResetTokenHash(ctx context.Context, tokenHash string, now time.Time) (*Principal, error) {
	query := `SELECT ` + principalColumns + ` FROM users
	          WHERE password_reset_token_hash = ? AND password_reset_expires_at > ? AND active = TRUE`

	p, err := scanPrincipal(r.db.QueryRowContext(ctx, query, tokenHash, now.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("reset token not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by reset token: %w", err)
	}

	return p, nil
}

// Update locks the row, applies u in Go, and writes every mutable column
// back inside one transaction, so readers never see a half-applied change.
func (r *principalRepository) Update(ctx context.Context, id string, u PrincipalUpdate) (*Principal, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + principalColumns + ` FROM users WHERE id = ? AND active = TRUE FOR UPDATE`
	p, err := scanPrincipal(tx.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("locking user: %w", err)
	}

	if !u.Matches(p) {
		return nil, apperror.NewNotFound("user not found")
	}
	u.Apply(p)

	_, err = tx.ExecContext(ctx, `UPDATE users SET
	        email = ?, name = ?, password_hash = ?, role = ?, password_changed_at = ?,
	        password_reset_token_hash = ?, password_reset_expires_at = ?, active = ?
	        WHERE id = ?`,
		p.Email,
		p.Name,
		p.PasswordHash,
		p.Role,
		p.PasswordChangedAt,
		p.PasswordResetTokenHash,
		p.PasswordResetExpiresAt,
		p.Active,
		p.ID,
	)
	if isDuplicate(err) {
		return nil, apperror.NewConflict("an account with this email already exists")
	}
	if err != nil {
		return nil, fmt.Errorf("updating user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing user update: %w", err)
	}

	return p, nil
}

// List returns a paginated list of active principals ordered by creation
// date, and the total count for pagination.
func (r *principalRepository) List(ctx context.Context, offset, limit int) ([]Principal, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE active = TRUE`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	query := `SELECT ` + principalColumns + ` FROM users WHERE active = TRUE
	          ORDER BY created_at DESC, id LIMIT ? OFFSET ?`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var principals []Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning user row: %w", err)
		}
		principals = append(principals, *p)
	}

	return principals, total, rows.Err()
}

// Matches reports whether the update's precondition holds for p.
func (u PrincipalUpdate) Matches(p *Principal) bool {
	if u.IfResetTokenHash == nil {
		return true
	}
	return p.PasswordResetTokenHash != nil && *p.PasswordResetTokenHash == *u.IfResetTokenHash
}

// Apply mutates p according to u. Stores call it under their own lock so
// the rules stay identical across implementations.
func (u PrincipalUpdate) Apply(p *Principal) {
	if u.Email != nil {
		p.Email = NormalizeEmail(*u.Email)
	}
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.PasswordHash != nil {
		p.PasswordHash = *u.PasswordHash
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.Active != nil {
		p.Active = *u.Active
	}
	if u.PasswordChangedAt != nil {
		at := u.PasswordChangedAt.UTC()
		if p.PasswordChangedAt == nil || at.After(*p.PasswordChangedAt) {
			p.PasswordChangedAt = &at
		}
	}
	if u.ClearResetToken {
		p.PasswordResetTokenHash = nil
		p.PasswordResetExpiresAt = nil
	}
	if u.SetResetToken != nil {
		hash := u.SetResetToken.Hash
		expires := u.SetResetToken.ExpiresAt.UTC()
		p.PasswordResetTokenHash = &hash
		p.PasswordResetExpiresAt = &expires
	}
}

// isDuplicate reports whether err is a MariaDB unique key violation.
func isDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
