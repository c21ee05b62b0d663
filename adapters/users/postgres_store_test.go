package users

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io/fs"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/layer-3/gatekeeper/core"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStoreWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db), mock
}

var columns = []string{
	"id", "email", "name", "phone", "password_hash", "role", "is_active", "is_locked", "is_email_verified",
	"email_verification_token_hash", "email_verification_expires", "password_reset_token_hash", "password_reset_expires",
	"password_changed_at", "created_at", "updated_at",
}

func TestFindByID_Found(t *testing.T) {
	store, mock := newStoreWithMock(t)
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	expires := created.Add(24 * time.Hour)

	rows := sqlmock.NewRows(columns).AddRow(
		"u-1", "jane@example.com", "Jane", "", "hash", "admin", true, false, false,
		"vh", expires, nil, nil,
		created, created, created,
	)
	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+accounts\s+WHERE\s+id\s*=\s*\$1$`).
		WithArgs("u-1").
		WillReturnRows(rows)

	acc, err := store.FindByID(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", acc.Email)
	assert.Equal(t, core.RoleAdmin, acc.Role)
	assert.True(t, acc.IsActive)
	assert.Equal(t, "vh", acc.EmailVerificationTokenHash)
	assert.True(t, expires.Equal(acc.EmailVerificationExpires))
	assert.Empty(t, acc.PasswordResetTokenHash)
	assert.True(t, acc.PasswordResetExpires.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmail_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`(?s)^SELECT\s+id,.*FROM\s+accounts\s+WHERE\s+email\s*=\s*\$1$`).
		WithArgs("jane@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := store.FindByEmail(context.Background(), "Jane@Example.com")
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByResetToken_DBError(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(`password_reset_token_hash\s*=\s*\$1`).
		WithArgs("rh").
		WillReturnError(errors.New("db down"))

	_, err := store.FindByResetToken(context.Background(), "rh")
	require.Error(t, err)
	assert.Regexp(t, regexp.MustCompile(`db error: .*db down`), err.Error())
}

func saveArgs() []driver.Value {
	args := make([]driver.Value, 16)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}

func TestSave_Upserts(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+accounts.*ON\s+CONFLICT\s+\(id\)\s+DO\s+UPDATE`).
		WithArgs(saveArgs()...).
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	err := store.Save(context.Background(), &core.Account{
		ID: "u-1", Email: "jane@example.com", PasswordHash: "hash", Role: core.RoleUser,
		IsActive: true, CreatedAt: now, UpdatedAt: now, PasswordChangedAt: now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSave_DuplicateEmail(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectExec(`INSERT\s+INTO\s+accounts`).
		WithArgs(saveArgs()...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	err := store.Save(context.Background(), &core.Account{ID: "u-2", Email: "jane@example.com"})
	assert.ErrorIs(t, err, core.ErrEmailTaken)
}

func TestSave_RejectsMissingID(t *testing.T) {
	store, _ := newStoreWithMock(t)
	assert.ErrorIs(t, store.Save(context.Background(), &core.Account{}), core.ErrInvalidInput)
}

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, "00001_create_accounts.sql", entries[0].Name())
}

func TestMigrateRunsEmbeddedMigrations(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(ctx context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, Migrate(context.Background(), db))
	assert.Equal(t, "migrations", gotDir)

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	assert.ErrorContains(t, Migrate(context.Background(), db), "boom")
}
