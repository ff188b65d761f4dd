package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func userRows(u identity.User) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "email", "wallet_address", "role", "kyc_status", "is_active", "created_at", "updated_at",
	}).AddRow(u.ID, u.Email, u.WalletAddress, string(u.Role), string(u.KYCStatus), u.IsActive, u.CreatedAt, u.UpdatedAt)
}

func TestGetUser(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	want := identity.User{
		ID: "u1", Email: "a@example.com", WalletAddress: "wallet-1",
		Role: identity.RoleInvestor, KYCStatus: identity.KYCVerified,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(userRows(want))

	got, err := store.GetUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCreateUserDuplicate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := store.CreateUser(context.Background(), identity.User{
		Email: "a@example.com", Role: identity.RoleInvestor, KYCStatus: identity.KYCPending,
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
}

func TestUpdateUserMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	existing := identity.User{
		ID: "u1", Role: identity.RoleInvestor, KYCStatus: identity.KYCPending,
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("u1").
		WillReturnRows(userRows(existing))
	mock.ExpectExec(`UPDATE users`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := store.UpdateUser(context.Background(), existing)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAtomicCommitsOnSuccess(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Atomic(context.Background(), func(s storage.Store) error {
		_, err := s.CreateUser(context.Background(), identity.User{
			Email: "a@example.com", Role: identity.RoleInvestor, KYCStatus: identity.KYCPending,
		})
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicRollsBackOnError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := store.Atomic(context.Background(), func(s storage.Store) error {
		_, err := s.CreateUser(context.Background(), identity.User{Email: "a@example.com"})
		return err
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAtomicNestedReusesTransaction(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO users`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.Atomic(context.Background(), func(s storage.Store) error {
		if _, err := s.CreateUser(context.Background(), identity.User{Email: "a@example.com"}); err != nil {
			return err
		}
		// The inner unit must not open a second transaction.
		return s.Atomic(context.Background(), func(inner storage.Store) error {
			_, err := inner.CreateUser(context.Background(), identity.User{Email: "b@example.com"})
			return err
		})
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSumHoldings(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(token_amount\), 0\) FROM portfolio_holdings WHERE asset_id = \$1`).
		WithArgs("a1").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(4200))

	sum, err := store.SumHoldings(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, int64(4200), sum)
}

func TestOverlappingAuctionExists(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT EXISTS`).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.OverlappingAuctionExists(context.Background(), "a1", now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, exists)
}
