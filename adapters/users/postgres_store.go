package users

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/layer-3/gatekeeper/core"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// DBTX is the subset of database/sql used by the store.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db DBTX
}

func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects through the pgx stdlib driver and checks the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const accountColumns = `id, email, name, phone, password_hash, role, is_active, is_locked, is_email_verified,
	email_verification_token_hash, email_verification_expires, password_reset_token_hash, password_reset_expires,
	password_changed_at, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*core.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*core.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, normalizeEmail(email))
}

func (s *PostgresStore) FindByVerificationToken(ctx context.Context, tokenHash string) (*core.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email_verification_token_hash = $1`, tokenHash)
}

func (s *PostgresStore) FindByResetToken(ctx context.Context, tokenHash string) (*core.Account, error) {
	return s.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE password_reset_token_hash = $1`, tokenHash)
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*core.Account, error) {
	var (
		acc                         core.Account
		role                        string
		verifyHash, resetHash       sql.NullString
		verifyExpires, resetExpires sql.NullTime
	)

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&acc.ID, &acc.Email, &acc.Name, &acc.Phone, &acc.PasswordHash, &role,
		&acc.IsActive, &acc.IsLocked, &acc.IsEmailVerified,
		&verifyHash, &verifyExpires, &resetHash, &resetExpires,
		&acc.PasswordChangedAt, &acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrAccountNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	acc.Role = core.Role(role)
	acc.EmailVerificationTokenHash = verifyHash.String
	acc.EmailVerificationExpires = verifyExpires.Time
	acc.PasswordResetTokenHash = resetHash.String
	acc.PasswordResetExpires = resetExpires.Time
	return &acc, nil
}

// Save upserts the account by ID.
func (s *PostgresStore) Save(ctx context.Context, account *core.Account) error {
	if account == nil || account.ID == "" {
		return core.ErrInvalidInput
	}

	query :=
		`INSERT INTO accounts (` + accountColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			password_hash = EXCLUDED.password_hash,
			role = EXCLUDED.role,
			is_active = EXCLUDED.is_active,
			is_locked = EXCLUDED.is_locked,
			is_email_verified = EXCLUDED.is_email_verified,
			email_verification_token_hash = EXCLUDED.email_verification_token_hash,
			email_verification_expires = EXCLUDED.email_verification_expires,
			password_reset_token_hash = EXCLUDED.password_reset_token_hash,
			password_reset_expires = EXCLUDED.password_reset_expires,
			password_changed_at = EXCLUDED.password_changed_at,
			updated_at = EXCLUDED.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		account.ID, normalizeEmail(account.Email), account.Name, account.Phone, account.PasswordHash, string(account.Role),
		account.IsActive, account.IsLocked, account.IsEmailVerified,
		nullString(account.EmailVerificationTokenHash), nullTime(account.EmailVerificationExpires),
		nullString(account.PasswordResetTokenHash), nullTime(account.PasswordResetExpires),
		account.PasswordChangedAt, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.ErrEmailTaken
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
