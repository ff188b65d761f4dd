// Package postgres implements the storage interfaces backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/auction"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/trade"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// querier is satisfied by *sql.DB and *sql.Tx so the same statements serve
// both direct calls and units of work.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
	q  querier
}

var _ storage.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

// Atomic runs fn inside a database transaction. Nested calls reuse the
// enclosing transaction.
func (s *Store) Atomic(ctx context.Context, fn func(storage.Store) error) error {
	if _, nested := s.q.(*sql.Tx); nested {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	txStore := &Store{db: s.db, q: tx}
	if err := fn(txStore); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// mapError translates driver errors onto the storage sentinels.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			return storage.ErrDuplicate
		case "40001", "40P01":
			return storage.ErrConflict
		}
	}
	return err
}

func toNullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func toNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func fromNullTime(nt sql.NullTime) time.Time {
	if !nt.Valid {
		return time.Time{}
	}
	return nt.Time.UTC()
}

// --- UserStore ---------------------------------------------------------------

const userColumns = `id, email, wallet_address, role, kyc_status, is_active, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (identity.User, error) {
	var (
		u      identity.User
		email  sql.NullString
		wallet sql.NullString
	)
	if err := row.Scan(&u.ID, &email, &wallet, &u.Role, &u.KYCStatus, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return identity.User{}, mapError(err)
	}
	u.Email = email.String
	u.WalletAddress = wallet.String
	return u, nil
}

func (s *Store) CreateUser(ctx context.Context, u identity.User) (identity.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO users (id, email, wallet_address, role, kyc_status, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, toNullString(u.Email), toNullString(u.WalletAddress), u.Role, u.KYCStatus, u.IsActive, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return identity.User{}, mapError(err)
	}
	return u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u identity.User) (identity.User, error) {
	existing, err := s.GetUser(ctx, u.ID)
	if err != nil {
		return identity.User{}, err
	}
	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()

	result, err := s.q.ExecContext(ctx, `
		UPDATE users
		SET email = $2, wallet_address = $3, role = $4, kyc_status = $5, is_active = $6, updated_at = $7
		WHERE id = $1
	`, u.ID, toNullString(u.Email), toNullString(u.WalletAddress), u.Role, u.KYCStatus, u.IsActive, u.UpdatedAt)
	if err != nil {
		return identity.User{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return identity.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id string) (identity.User, error) {
	return scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (identity.User, error) {
	return scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

func (s *Store) GetUserByWallet(ctx context.Context, wallet string) (identity.User, error) {
	return scanUser(s.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE wallet_address = $1`, wallet))
}

// --- InvestorProfileStore ----------------------------------------------------

const profileColumns = `id, user_id, first_name, last_name, country, investor_type, risk_tolerance, accreditation_status, created_at, updated_at`

func scanProfile(row interface{ Scan(...any) error }) (identity.InvestorProfile, error) {
	var (
		p             identity.InvestorProfile
		risk          sql.NullString
		accreditation sql.NullString
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.FirstName, &p.LastName, &p.Country, &p.InvestorType, &risk, &accreditation, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return identity.InvestorProfile{}, mapError(err)
	}
	p.RiskTolerance = risk.String
	p.AccreditationStatus = accreditation.String
	return p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p identity.InvestorProfile) (identity.InvestorProfile, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO investor_profiles (id, user_id, first_name, last_name, country, investor_type, risk_tolerance, accreditation_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, p.ID, p.UserID, p.FirstName, p.LastName, p.Country, p.InvestorType, toNullString(p.RiskTolerance), toNullString(p.AccreditationStatus), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return identity.InvestorProfile{}, mapError(err)
	}
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p identity.InvestorProfile) (identity.InvestorProfile, error) {
	existing, err := s.GetProfile(ctx, p.ID)
	if err != nil {
		return identity.InvestorProfile{}, err
	}
	p.UserID = existing.UserID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()

	result, err := s.q.ExecContext(ctx, `
		UPDATE investor_profiles
		SET first_name = $2, last_name = $3, country = $4, investor_type = $5, risk_tolerance = $6, accreditation_status = $7, updated_at = $8
		WHERE id = $1
	`, p.ID, p.FirstName, p.LastName, p.Country, p.InvestorType, toNullString(p.RiskTolerance), toNullString(p.AccreditationStatus), p.UpdatedAt)
	if err != nil {
		return identity.InvestorProfile{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return identity.InvestorProfile{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetProfile(ctx context.Context, id string) (identity.InvestorProfile, error) {
	return scanProfile(s.q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM investor_profiles WHERE id = $1`, id))
}

func (s *Store) GetProfileByUser(ctx context.Context, userID string) (identity.InvestorProfile, error) {
	return scanProfile(s.q.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM investor_profiles WHERE user_id = $1`, userID))
}

// --- BankStore ---------------------------------------------------------------

const bankColumns = `id, name, code, admin_user_id, created_at, updated_at`

func scanBank(row interface{ Scan(...any) error }) (identity.Bank, error) {
	var (
		b     identity.Bank
		admin sql.NullString
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Code, &admin, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return identity.Bank{}, mapError(err)
	}
	b.AdminUserID = admin.String
	return b, nil
}

func (s *Store) CreateBank(ctx context.Context, b identity.Bank) (identity.Bank, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO banks (id, name, code, admin_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.Name, b.Code, toNullString(b.AdminUserID), b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return identity.Bank{}, mapError(err)
	}
	return b, nil
}

func (s *Store) GetBank(ctx context.Context, id string) (identity.Bank, error) {
	return scanBank(s.q.QueryRowContext(ctx, `SELECT `+bankColumns+` FROM banks WHERE id = $1`, id))
}

func (s *Store) GetBankByCode(ctx context.Context, code string) (identity.Bank, error) {
	return scanBank(s.q.QueryRowContext(ctx, `SELECT `+bankColumns+` FROM banks WHERE code = $1`, code))
}

func (s *Store) ListBanks(ctx context.Context) ([]identity.Bank, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+bankColumns+` FROM banks ORDER BY created_at`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []identity.Bank
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- AssetStore --------------------------------------------------------------

const assetColumns = `id, bank_id, name, description, asset_type, total_value, total_supply, price_per_token,
	mint_address, metadata_uri, tokenization_offering_id, tokenization_status, listing_status,
	tokenized_at, listed_at, created_at, updated_at`

func scanAsset(row interface{ Scan(...any) error }) (asset.Asset, error) {
	var (
		a           asset.Asset
		description sql.NullString
		mint        sql.NullString
		metadata    sql.NullString
		offering    sql.NullString
		tokenizedAt sql.NullTime
		listedAt    sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.BankID, &a.Name, &description, &a.AssetType, &a.TotalValue, &a.TotalSupply,
		&a.PricePerToken, &mint, &metadata, &offering, &a.TokenizationStatus, &a.ListingStatus,
		&tokenizedAt, &listedAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return asset.Asset{}, mapError(err)
	}
	a.Description = description.String
	a.MintAddress = mint.String
	a.MetadataURI = metadata.String
	a.TokenizationOfferingID = offering.String
	a.TokenizedAt = fromNullTime(tokenizedAt)
	a.ListedAt = fromNullTime(listedAt)
	return a, nil
}

func (s *Store) CreateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO assets (id, bank_id, name, description, asset_type, total_value, total_supply, price_per_token,
			mint_address, metadata_uri, tokenization_offering_id, tokenization_status, listing_status,
			tokenized_at, listed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, a.ID, a.BankID, a.Name, toNullString(a.Description), a.AssetType, a.TotalValue, a.TotalSupply, a.PricePerToken,
		toNullString(a.MintAddress), toNullString(a.MetadataURI), toNullString(a.TokenizationOfferingID),
		a.TokenizationStatus, a.ListingStatus, toNullTime(a.TokenizedAt), toNullTime(a.ListedAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return asset.Asset{}, mapError(err)
	}
	return a, nil
}

func (s *Store) UpdateAsset(ctx context.Context, a asset.Asset) (asset.Asset, error) {
	existing, err := s.GetAsset(ctx, a.ID)
	if err != nil {
		return asset.Asset{}, err
	}
	a.BankID = existing.BankID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	result, err := s.q.ExecContext(ctx, `
		UPDATE assets
		SET name = $2, description = $3, asset_type = $4, total_value = $5, total_supply = $6, price_per_token = $7,
			mint_address = $8, metadata_uri = $9, tokenization_offering_id = $10, tokenization_status = $11,
			listing_status = $12, tokenized_at = $13, listed_at = $14, updated_at = $15
		WHERE id = $1
	`, a.ID, a.Name, toNullString(a.Description), a.AssetType, a.TotalValue, a.TotalSupply, a.PricePerToken,
		toNullString(a.MintAddress), toNullString(a.MetadataURI), toNullString(a.TokenizationOfferingID),
		a.TokenizationStatus, a.ListingStatus, toNullTime(a.TokenizedAt), toNullTime(a.ListedAt), a.UpdatedAt)
	if err != nil {
		return asset.Asset{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return asset.Asset{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAsset(ctx context.Context, id string) (asset.Asset, error) {
	return scanAsset(s.q.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1`, id))
}

func (s *Store) GetAssetForUpdate(ctx context.Context, id string) (asset.Asset, error) {
	return scanAsset(s.q.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = $1 FOR UPDATE`, id))
}

func (s *Store) DeleteAsset(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM assets WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func assetFilterClauses(f asset.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.BankID != "" {
		add("bank_id = $%d", f.BankID)
	}
	if f.AssetType != "" {
		add("asset_type = $%d", f.AssetType)
	}
	if f.TokenizationStatus != "" {
		add("tokenization_status = $%d", f.TokenizationStatus)
	}
	if f.ListingStatus != "" {
		add("listing_status = $%d", f.ListingStatus)
	}
	if f.MinValue != nil {
		add("total_value >= $%d", *f.MinValue)
	}
	if f.MaxValue != nil {
		add("total_value <= $%d", *f.MaxValue)
	}
	if f.Search != "" {
		args = append(args, "%"+f.Search+"%")
		clauses = append(clauses, fmt.Sprintf("(name ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var assetSortColumns = map[string]string{
	"createdAt":     "created_at",
	"name":          "name",
	"totalValue":    "total_value",
	"pricePerToken": "price_per_token",
}

func orderClause(columns map[string]string, sortBy storage.Sort) string {
	sortBy = sortBy.Normalize()
	column, ok := columns[sortBy.Field]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if sortBy.Desc {
		direction = "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s", column, direction)
}

func (s *Store) ListAssets(ctx context.Context, f asset.Filter, page storage.Page, sortBy storage.Sort) (storage.Paged[asset.Asset], error) {
	total, err := s.CountAssets(ctx, f)
	if err != nil {
		return storage.Paged[asset.Asset]{}, err
	}

	where, args := assetFilterClauses(f)
	page = page.Normalize()
	query := `SELECT ` + assetColumns + ` FROM assets` + where + orderClause(assetSortColumns, sortBy) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Size, page.Offset())

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.Paged[asset.Asset]{}, mapError(err)
	}
	defer rows.Close()

	var out []asset.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return storage.Paged[asset.Asset]{}, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return storage.Paged[asset.Asset]{}, err
	}
	return storage.NewPaged(out, total, page), nil
}

func (s *Store) CountAssets(ctx context.Context, f asset.Filter) (int64, error) {
	where, args := assetFilterClauses(f)
	var total int64
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets`+where, args...).Scan(&total); err != nil {
		return 0, mapError(err)
	}
	return total, nil
}

// --- DocumentStore -----------------------------------------------------------

const documentColumns = `id, asset_id, doc_type, name, storage_key, mime_type, size_bytes, uploaded_by, created_at`

func scanDocument(row interface{ Scan(...any) error }) (asset.Document, error) {
	var d asset.Document
	if err := row.Scan(&d.ID, &d.AssetID, &d.Type, &d.Name, &d.StorageKey, &d.MimeType, &d.SizeBytes, &d.UploadedBy, &d.CreatedAt); err != nil {
		return asset.Document{}, mapError(err)
	}
	return d, nil
}

func (s *Store) CreateDocument(ctx context.Context, d asset.Document) (asset.Document, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO documents (id, asset_id, doc_type, name, storage_key, mime_type, size_bytes, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, d.ID, d.AssetID, d.Type, d.Name, d.StorageKey, d.MimeType, d.SizeBytes, d.UploadedBy, d.CreatedAt)
	if err != nil {
		return asset.Document{}, mapError(err)
	}
	return d, nil
}

func (s *Store) GetDocument(ctx context.Context, id string) (asset.Document, error) {
	return scanDocument(s.q.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
}

func (s *Store) ListDocuments(ctx context.Context, assetID string) ([]asset.Document, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE asset_id = $1 ORDER BY created_at`, assetID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []asset.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteDocumentsByAsset(ctx context.Context, assetID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM documents WHERE asset_id = $1`, assetID)
	return mapError(err)
}

// --- TransactionStore --------------------------------------------------------

const transactionColumns = `id, asset_id, buyer_id, seller_id, tx_type, amount, token_amount,
	escrow_address, tx_signature, status, failure_reason, completed_at, created_at, updated_at`

func scanTransaction(row interface{ Scan(...any) error }) (trade.Transaction, error) {
	var (
		tx          trade.Transaction
		seller      sql.NullString
		escrow      sql.NullString
		signature   sql.NullString
		failure     sql.NullString
		completedAt sql.NullTime
	)
	if err := row.Scan(&tx.ID, &tx.AssetID, &tx.BuyerID, &seller, &tx.Type, &tx.Amount, &tx.TokenAmount,
		&escrow, &signature, &tx.Status, &failure, &completedAt, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
		return trade.Transaction{}, mapError(err)
	}
	tx.SellerID = seller.String
	tx.EscrowAddress = escrow.String
	tx.TxSignature = signature.String
	tx.FailureReason = failure.String
	tx.CompletedAt = fromNullTime(completedAt)
	return tx, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx trade.Transaction) (trade.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO transactions (id, asset_id, buyer_id, seller_id, tx_type, amount, token_amount,
			escrow_address, tx_signature, status, failure_reason, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, tx.ID, tx.AssetID, tx.BuyerID, toNullString(tx.SellerID), tx.Type, tx.Amount, tx.TokenAmount,
		toNullString(tx.EscrowAddress), toNullString(tx.TxSignature), tx.Status, toNullString(tx.FailureReason),
		toNullTime(tx.CompletedAt), tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return trade.Transaction{}, mapError(err)
	}
	return tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx trade.Transaction) (trade.Transaction, error) {
	existing, err := s.GetTransaction(ctx, tx.ID)
	if err != nil {
		return trade.Transaction{}, err
	}
	tx.AssetID = existing.AssetID
	tx.BuyerID = existing.BuyerID
	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = time.Now().UTC()

	result, err := s.q.ExecContext(ctx, `
		UPDATE transactions
		SET seller_id = $2, tx_type = $3, amount = $4, token_amount = $5, escrow_address = $6,
			tx_signature = $7, status = $8, failure_reason = $9, completed_at = $10, updated_at = $11
		WHERE id = $1
	`, tx.ID, toNullString(tx.SellerID), tx.Type, tx.Amount, tx.TokenAmount, toNullString(tx.EscrowAddress),
		toNullString(tx.TxSignature), tx.Status, toNullString(tx.FailureReason), toNullTime(tx.CompletedAt), tx.UpdatedAt)
	if err != nil {
		return trade.Transaction{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return trade.Transaction{}, storage.ErrNotFound
	}
	return tx, nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (trade.Transaction, error) {
	return scanTransaction(s.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (s *Store) GetTransactionForUpdate(ctx context.Context, id string) (trade.Transaction, error) {
	return scanTransaction(s.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id))
}

func transactionFilterClauses(f trade.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.BuyerID != "" {
		add("buyer_id = $%d", f.BuyerID)
	}
	if f.AssetID != "" {
		add("asset_id = $%d", f.AssetID)
	}
	if f.Type != "" {
		add("tx_type = $%d", f.Type)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var transactionSortColumns = map[string]string{
	"createdAt": "created_at",
	"amount":    "amount",
}

func (s *Store) ListTransactions(ctx context.Context, f trade.Filter, page storage.Page, sortBy storage.Sort) (storage.Paged[trade.Transaction], error) {
	where, args := transactionFilterClauses(f)

	var total int64
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`+where, args...).Scan(&total); err != nil {
		return storage.Paged[trade.Transaction]{}, mapError(err)
	}

	page = page.Normalize()
	query := `SELECT ` + transactionColumns + ` FROM transactions` + where + orderClause(transactionSortColumns, sortBy) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Size, page.Offset())

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.Paged[trade.Transaction]{}, mapError(err)
	}
	defer rows.Close()

	var out []trade.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return storage.Paged[trade.Transaction]{}, err
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return storage.Paged[trade.Transaction]{}, err
	}
	return storage.NewPaged(out, total, page), nil
}

func (s *Store) CountTransactionsByStatus(ctx context.Context, f trade.Filter) (map[trade.Status]int64, error) {
	where, args := transactionFilterClauses(f)
	rows, err := s.q.QueryContext(ctx, `SELECT status, COUNT(*) FROM transactions`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[trade.Status]int64)
	for rows.Next() {
		var (
			status trade.Status
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[status] = count
	}
	return out, rows.Err()
}

func (s *Store) TransactionStats(ctx context.Context, f trade.Filter) (trade.Stats, error) {
	where, args := transactionFilterClauses(f)
	row := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'COMPLETED'),
			COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED'), 0),
			COALESCE(SUM(token_amount) FILTER (WHERE status = 'COMPLETED'), 0)
		FROM transactions`+where, args...)

	var stats trade.Stats
	if err := row.Scan(&stats.TotalTransactions, &stats.CompletedTransactions, &stats.TotalInvested, &stats.TotalTokens); err != nil {
		return trade.Stats{}, mapError(err)
	}
	return stats, nil
}

func (s *Store) AssetSaleStats(ctx context.Context, assetID string) (int64, int64, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT buyer_id)
		FROM transactions
		WHERE asset_id = $1 AND status = 'COMPLETED'
	`, assetID)

	var completed, investors int64
	if err := row.Scan(&completed, &investors); err != nil {
		return 0, 0, mapError(err)
	}
	return completed, investors, nil
}

func (s *Store) ListStuckTransactions(ctx context.Context, statuses []trade.Status, before time.Time) ([]trade.Transaction, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status = ANY($1) AND updated_at < $2
		ORDER BY updated_at
	`, pq.Array(values), before.UTC())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []trade.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

// --- HoldingStore ------------------------------------------------------------

const holdingColumns = `id, investor_profile_id, asset_id, token_amount, cost_basis, created_at, updated_at`

func scanHolding(row interface{ Scan(...any) error }) (trade.Holding, error) {
	var h trade.Holding
	if err := row.Scan(&h.ID, &h.InvestorProfileID, &h.AssetID, &h.TokenAmount, &h.CostBasis, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return trade.Holding{}, mapError(err)
	}
	return h, nil
}

func (s *Store) UpsertHolding(ctx context.Context, profileID, assetID string, tokenDelta int64, costDelta decimal.Decimal) (trade.Holding, error) {
	now := time.Now().UTC()
	row := s.q.QueryRowContext(ctx, `
		INSERT INTO portfolio_holdings (id, investor_profile_id, asset_id, token_amount, cost_basis, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (investor_profile_id, asset_id) DO UPDATE
		SET token_amount = portfolio_holdings.token_amount + EXCLUDED.token_amount,
			cost_basis = portfolio_holdings.cost_basis + EXCLUDED.cost_basis,
			updated_at = EXCLUDED.updated_at
		RETURNING `+holdingColumns+`
	`, uuid.NewString(), profileID, assetID, tokenDelta, costDelta, now)
	return scanHolding(row)
}

func (s *Store) GetHolding(ctx context.Context, profileID, assetID string) (trade.Holding, error) {
	return scanHolding(s.q.QueryRowContext(ctx, `
		SELECT `+holdingColumns+` FROM portfolio_holdings
		WHERE investor_profile_id = $1 AND asset_id = $2
	`, profileID, assetID))
}

func (s *Store) ListHoldingsByProfile(ctx context.Context, profileID string) ([]trade.Holding, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+holdingColumns+` FROM portfolio_holdings
		WHERE investor_profile_id = $1
		ORDER BY created_at
	`, profileID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []trade.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) SumHoldings(ctx context.Context, assetID string) (int64, error) {
	var sum int64
	err := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(token_amount), 0) FROM portfolio_holdings WHERE asset_id = $1
	`, assetID).Scan(&sum)
	if err != nil {
		return 0, mapError(err)
	}
	return sum, nil
}

// --- AuctionStore ------------------------------------------------------------

const auctionColumns = `id, asset_id, reserve_price, current_bid, current_bidder, token_amount,
	start_time, end_time, status, settled_at, created_at, updated_at`

func scanAuction(row interface{ Scan(...any) error }) (auction.Auction, error) {
	var (
		a          auction.Auction
		currentBid decimal.NullDecimal
		bidder     sql.NullString
		settledAt  sql.NullTime
	)
	if err := row.Scan(&a.ID, &a.AssetID, &a.ReservePrice, &currentBid, &bidder, &a.TokenAmount,
		&a.StartTime, &a.EndTime, &a.Status, &settledAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return auction.Auction{}, mapError(err)
	}
	if currentBid.Valid {
		a.CurrentBid = currentBid.Decimal
	}
	a.CurrentBidder = bidder.String
	a.SettledAt = fromNullTime(settledAt)
	return a, nil
}

func toNullDecimal(d decimal.Decimal, valid bool) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: valid}
}

func (s *Store) CreateAuction(ctx context.Context, a auction.Auction) (auction.Auction, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO auctions (id, asset_id, reserve_price, current_bid, current_bidder, token_amount,
			start_time, end_time, status, settled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, a.ID, a.AssetID, a.ReservePrice, toNullDecimal(a.CurrentBid, a.HasBid()), toNullString(a.CurrentBidder),
		a.TokenAmount, a.StartTime.UTC(), a.EndTime.UTC(), a.Status, toNullTime(a.SettledAt), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return auction.Auction{}, mapError(err)
	}
	return a, nil
}

func (s *Store) UpdateAuction(ctx context.Context, a auction.Auction) (auction.Auction, error) {
	existing, err := s.GetAuction(ctx, a.ID)
	if err != nil {
		return auction.Auction{}, err
	}
	a.AssetID = existing.AssetID
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()

	result, err := s.q.ExecContext(ctx, `
		UPDATE auctions
		SET reserve_price = $2, current_bid = $3, current_bidder = $4, token_amount = $5,
			start_time = $6, end_time = $7, status = $8, settled_at = $9, updated_at = $10
		WHERE id = $1
	`, a.ID, a.ReservePrice, toNullDecimal(a.CurrentBid, a.HasBid()), toNullString(a.CurrentBidder),
		a.TokenAmount, a.StartTime.UTC(), a.EndTime.UTC(), a.Status, toNullTime(a.SettledAt), a.UpdatedAt)
	if err != nil {
		return auction.Auction{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return auction.Auction{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAuction(ctx context.Context, id string) (auction.Auction, error) {
	return scanAuction(s.q.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id))
}

func (s *Store) GetAuctionForUpdate(ctx context.Context, id string) (auction.Auction, error) {
	return scanAuction(s.q.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, id))
}

func auctionFilterClauses(f auction.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if f.AssetID != "" {
		add("asset_id = $%d", f.AssetID)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.MinReserve != nil {
		add("reserve_price >= $%d", *f.MinReserve)
	}
	if f.MaxReserve != nil {
		add("reserve_price <= $%d", *f.MaxReserve)
	}
	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

var auctionSortColumns = map[string]string{
	"createdAt":    "created_at",
	"endTime":      "end_time",
	"reservePrice": "reserve_price",
}

func (s *Store) ListAuctions(ctx context.Context, f auction.Filter, page storage.Page, sortBy storage.Sort) (storage.Paged[auction.Auction], error) {
	where, args := auctionFilterClauses(f)

	var total int64
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM auctions`+where, args...).Scan(&total); err != nil {
		return storage.Paged[auction.Auction]{}, mapError(err)
	}

	page = page.Normalize()
	query := `SELECT ` + auctionColumns + ` FROM auctions` + where + orderClause(auctionSortColumns, sortBy) +
		fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.Size, page.Offset())

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return storage.Paged[auction.Auction]{}, mapError(err)
	}
	defer rows.Close()

	var out []auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return storage.Paged[auction.Auction]{}, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return storage.Paged[auction.Auction]{}, err
	}
	return storage.NewPaged(out, total, page), nil
}

func (s *Store) OverlappingAuctionExists(ctx context.Context, assetID string, start, end time.Time) (bool, error) {
	var exists bool
	err := s.q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM auctions
			WHERE asset_id = $1
			  AND status IN ('SCHEDULED', 'ACTIVE')
			  AND start_time <= $3
			  AND end_time >= $2
		)
	`, assetID, start.UTC(), end.UTC()).Scan(&exists)
	if err != nil {
		return false, mapError(err)
	}
	return exists, nil
}

func (s *Store) ActivateDue(ctx context.Context, now time.Time) ([]auction.Auction, error) {
	rows, err := s.q.QueryContext(ctx, `
		UPDATE auctions
		SET status = 'ACTIVE', updated_at = $2
		WHERE status = 'SCHEDULED' AND start_time <= $1
		RETURNING `+auctionColumns, now.UTC(), time.Now().UTC())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) EndDue(ctx context.Context, now time.Time) ([]auction.Auction, error) {
	rows, err := s.q.QueryContext(ctx, `
		UPDATE auctions
		SET status = 'ENDED', updated_at = $2
		WHERE status = 'ACTIVE' AND end_time <= $1
		RETURNING `+auctionColumns, now.UTC(), time.Now().UTC())
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []auction.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- BidStore ----------------------------------------------------------------

const bidColumns = `id, auction_id, bidder, amount, signature, is_winning, created_at`

func scanBid(row interface{ Scan(...any) error }) (auction.Bid, error) {
	var (
		b         auction.Bid
		signature sql.NullString
	)
	if err := row.Scan(&b.ID, &b.AuctionID, &b.Bidder, &b.Amount, &signature, &b.IsWinning, &b.CreatedAt); err != nil {
		return auction.Bid{}, mapError(err)
	}
	b.Signature = signature.String
	return b, nil
}

func (s *Store) CreateBid(ctx context.Context, b auction.Bid) (auction.Bid, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.CreatedAt = time.Now().UTC()

	_, err := s.q.ExecContext(ctx, `
		INSERT INTO bids (id, auction_id, bidder, amount, signature, is_winning, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, b.ID, b.AuctionID, b.Bidder, b.Amount, toNullString(b.Signature), b.IsWinning, b.CreatedAt)
	if err != nil {
		return auction.Bid{}, mapError(err)
	}
	return b, nil
}

func (s *Store) UpdateBid(ctx context.Context, b auction.Bid) (auction.Bid, error) {
	result, err := s.q.ExecContext(ctx, `
		UPDATE bids
		SET amount = $2, signature = $3, is_winning = $4
		WHERE id = $1
	`, b.ID, b.Amount, toNullString(b.Signature), b.IsWinning)
	if err != nil {
		return auction.Bid{}, mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return auction.Bid{}, storage.ErrNotFound
	}
	return s.GetBid(ctx, b.ID)
}

func (s *Store) GetBid(ctx context.Context, id string) (auction.Bid, error) {
	return scanBid(s.q.QueryRowContext(ctx, `SELECT `+bidColumns+` FROM bids WHERE id = $1`, id))
}

func (s *Store) DeleteBid(ctx context.Context, id string) error {
	result, err := s.q.ExecContext(ctx, `DELETE FROM bids WHERE id = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) GetWinningBid(ctx context.Context, auctionID string) (auction.Bid, error) {
	return scanBid(s.q.QueryRowContext(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 AND is_winning
	`, auctionID))
}

func (s *Store) ListBidsByAuction(ctx context.Context, auctionID string) ([]auction.Bid, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY created_at
	`, auctionID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []auction.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) ListBidHistory(ctx context.Context, auctionID string, page storage.Page) (storage.Paged[auction.Bid], error) {
	var total int64
	if err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM bids WHERE auction_id = $1`, auctionID).Scan(&total); err != nil {
		return storage.Paged[auction.Bid]{}, mapError(err)
	}

	page = page.Normalize()
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+bidColumns+` FROM bids
		WHERE auction_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, auctionID, page.Size, page.Offset())
	if err != nil {
		return storage.Paged[auction.Bid]{}, mapError(err)
	}
	defer rows.Close()

	var out []auction.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return storage.Paged[auction.Bid]{}, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return storage.Paged[auction.Bid]{}, err
	}
	return storage.NewPaged(out, total, page), nil
}
