// Package memory is an in-memory implementation of the storage interfaces. It
// is safe for concurrent use and backs local development and the service-level
// tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"sync"

	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/asset"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/auction"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/trade"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type state struct {
	users          map[string]identity.User
	usersByEmail   map[string]string
	usersByWallet  map[string]string
	profiles       map[string]identity.InvestorProfile
	profilesByUser map[string]string
	banks          map[string]identity.Bank
	banksByCode    map[string]string
	assets         map[string]asset.Asset
	documents      map[string]asset.Document
	transactions   map[string]trade.Transaction
	holdings       map[string]trade.Holding
	auctions       map[string]auction.Auction
	bids           map[string]auction.Bid
}

func newState() *state {
	return &state{
		users:          make(map[string]identity.User),
		usersByEmail:   make(map[string]string),
		usersByWallet:  make(map[string]string),
		profiles:       make(map[string]identity.InvestorProfile),
		profilesByUser: make(map[string]string),
		banks:          make(map[string]identity.Bank),
		banksByCode:    make(map[string]string),
		assets:         make(map[string]asset.Asset),
		documents:      make(map[string]asset.Document),
		transactions:   make(map[string]trade.Transaction),
		holdings:       make(map[string]trade.Holding),
		auctions:       make(map[string]auction.Auction),
		bids:           make(map[string]auction.Bid),
	}
}

func (st *state) clone() *state {
	dup := newState()
	for k, v := range st.users {
		dup.users[k] = v
	}
	for k, v := range st.usersByEmail {
		dup.usersByEmail[k] = v
	}
	for k, v := range st.usersByWallet {
		dup.usersByWallet[k] = v
	}
	for k, v := range st.profiles {
		dup.profiles[k] = v
	}
	for k, v := range st.profilesByUser {
		dup.profilesByUser[k] = v
	}
	for k, v := range st.banks {
		dup.banks[k] = v
	}
	for k, v := range st.banksByCode {
		dup.banksByCode[k] = v
	}
	for k, v := range st.assets {
		dup.assets[k] = v
	}
	for k, v := range st.documents {
		dup.documents[k] = v
	}
	for k, v := range st.transactions {
		dup.transactions[k] = v
	}
	for k, v := range st.holdings {
		dup.holdings[k] = v
	}
	for k, v := range st.auctions {
		dup.auctions[k] = v
	}
	for k, v := range st.bids {
		dup.bids[k] = v
	}
	return dup
}

// Store is the in-memory storage.Store implementation.
type Store struct {
	mu sync.RWMutex
	st *state
	tx bool
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{st: newState()}
}

func (s *Store) lock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) rlock() func() {
	if s.tx {
		return func() {}
	}
	s.mu.RLock()
	return s.mu.RUnlock
}

// Atomic runs fn against the shared state under the write lock, restoring a
// snapshot when fn fails. Nested calls reuse the enclosing unit.
func (s *Store) Atomic(ctx context.Context, fn func(storage.Store) error) error {
	if s.tx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.st.clone()
	txStore := &Store{st: s.st, tx: true}
	if err := fn(txStore); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(_ context.Context, u identity.User) (identity.User, error) {
	unlock := s.lock()
	defer unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	} else if _, exists := s.st.users[u.ID]; exists {
		return identity.User{}, storage.ErrDuplicate
	}
	if u.Email != "" {
		if _, exists := s.st.usersByEmail[strings.ToLower(u.Email)]; exists {
			return identity.User{}, storage.ErrDuplicate
		}
	}
	if u.WalletAddress != "" {
		if _, exists := s.st.usersByWallet[u.WalletAddress]; exists {
			return identity.User{}, storage.ErrDuplicate
		}
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	s.st.users[u.ID] = u
	if u.Email != "" {
		s.st.usersByEmail[strings.ToLower(u.Email)] = u.ID
	}
	if u.WalletAddress != "" {
		s.st.usersByWallet[u.WalletAddress] = u.ID
	}
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, u identity.User) (identity.User, error) {
	unlock := s.lock()
	defer unlock()

	existing, ok := s.st.users[u.ID]
	if !ok {
		return identity.User{}, storage.ErrNotFound
	}
	if u.Email != "" && !strings.EqualFold(u.Email, existing.Email) {
		if _, taken := s.st.usersByEmail[strings.ToLower(u.Email)]; taken {
			return identity.User{}, storage.ErrDuplicate
		}
	}
	if u.WalletAddress != "" && u.WalletAddress != existing.WalletAddress {
		if _, taken := s.st.usersByWallet[u.WalletAddress]; taken {
			return identity.User{}, storage.ErrDuplicate
		}
	}

	if existing.Email != "" {
		delete(s.st.usersByEmail, strings.ToLower(existing.Email))
	}
	if existing.WalletAddress != "" {
		delete(s.st.usersByWallet, existing.WalletAddress)
	}

	u.CreatedAt = existing.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.st.users[u.ID] = u
	if u.Email != "" {
		s.st.usersByEmail[strings.ToLower(u.Email)] = u.ID
	}
	if u.WalletAddress != "" {
		s.st.usersByWallet[u.WalletAddress] = u.ID
	}
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (identity.User, error) {
	unlock := s.rlock()
	defer unlock()

	u, ok := s.st.users[id]
	if !ok {
		return identity.User{}, storage.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (identity.User, error) {
	unlock := s.rlock()
	defer unlock()

	id, ok := s.st.usersByEmail[strings.ToLower(email)]
	if !ok {
		return identity.User{}, storage.ErrNotFound
	}
	return s.st.users[id], nil
}

func (s *Store) GetUserByWallet(_ context.Context, wallet string) (identity.User, error) {
	unlock := s.rlock()
	defer unlock()

	id, ok := s.st.usersByWallet[wallet]
	if !ok {
		return identity.User{}, storage.ErrNotFound
	}
	return s.st.users[id], nil
}

// --- InvestorProfileStore ----------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p identity.InvestorProfile) (identity.InvestorProfile, error) {
	unlock := s.lock()
	defer unlock()

	if _, exists := s.st.profilesByUser[p.UserID]; exists {
		return identity.InvestorProfile{}, storage.ErrDuplicate
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	s.st.profiles[p.ID] = p
	s.st.profilesByUser[p.UserID] = p.ID
	return p, nil
}

func (s *Store) UpdateProfile(_ context.Context, p identity.InvestorProfile) (identity.InvestorProfile, error) {
	unlock := s.lock()
	defer unlock()

	existing, ok := s.st.profiles[p.ID]
	if !ok {
		return identity.InvestorProfile{}, storage.ErrNotFound
	}
	p.UserID = existing.UserID
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	s.st.profiles[p.ID] = p
	return p, nil
}

func (s *Store) GetProfile(_ context.Context, id string) (identity.InvestorProfile, error) {
	unlock := s.rlock()
	defer unlock()

	p, ok := s.st.profiles[id]
	if !ok {
		return identity.InvestorProfile{}, storage.ErrNotFound
	}
	return p, nil
}

func (s *Store) GetProfileByUser(_ context.Context, userID string) (identity.InvestorProfile, error) {
	unlock := s.rlock()
	defer unlock()

	id, ok := s.st.profilesByUser[userID]
	if !ok {
		return identity.InvestorProfile{}, storage.ErrNotFound
	}
	return s.st.profiles[id], nil
}

// --- BankStore ---------------------------------------------------------------

func (s *Store) CreateBank(_ context.Context, b identity.Bank) (identity.Bank, error) {
	unlock := s.lock()
	defer unlock()

	if _, exists := s.st.banksByCode[b.Code]; exists {
		return identity.Bank{}, storage.ErrDuplicate
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	s.st.banks[b.ID] = b
	s.st.banksByCode[b.Code] = b.ID
	return b, nil
}

func (s *Store) GetBank(_ context.Context, id string) (identity.Bank, error) {
	unlock := s.rlock()
	defer unlock()

	b, ok := s.st.banks[id]
	if !ok {
		return identity.Bank{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) GetBankByCode(_ context.Context, code string) (identity.Bank, error) {
	unlock := s.rlock()
	defer unlock()

	id, ok := s.st.banksByCode[code]
	if !ok {
		return identity.Bank{}, storage.ErrNotFound
	}
	return s.st.banks[id], nil
}

func (s *Store) ListBanks(_ context.Context) ([]identity.Bank, error) {
	unlock := s.rlock()
	defer unlock()

	out := make([]identity.Bank, 0, len(s.st.banks))
	for _, b := range s.st.banks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- AssetStore --------------------------------------------------------------

func (s *Store) CreateAsset(_ context.Context, a asset.Asset) (asset.Asset, error) {
	unlock := s.lock()
	defer unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	} else if _, exists := s.st.assets[a.ID]; exists {
		return asset.Asset{}, storage.ErrDuplicate
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	s.st.assets[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAsset(_ context.Context, a asset.Asset) (asset.Asset, error) {
	unlock := s.lock()
	defer unlock()

	existing, ok := s.st.assets[a.ID]
	if !ok {
		return asset.Asset{}, storage.ErrNotFound
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.st.assets[a.ID] = a
	return a, nil
}

func (s *Store) GetAsset(_ context.Context, id string) (asset.Asset, error) {
	unlock := s.rlock()
	defer unlock()

	a, ok := s.st.assets[id]
	if !ok {
		return asset.Asset{}, storage.ErrNotFound
	}
	return a, nil
}

// GetAssetForUpdate is equivalent to GetAsset here; atomic sections already
// hold the store's write lock.
func (s *Store) GetAssetForUpdate(ctx context.Context, id string) (asset.Asset, error) {
	return s.GetAsset(ctx, id)
}

func (s *Store) DeleteAsset(_ context.Context, id string) error {
	unlock := s.lock()
	defer unlock()

	if _, ok := s.st.assets[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.st.assets, id)
	return nil
}

func matchAsset(f asset.Filter, a asset.Asset) bool {
	if f.BankID != "" && a.BankID != f.BankID {
		return false
	}
	if f.AssetType != "" && a.AssetType != f.AssetType {
		return false
	}
	if f.TokenizationStatus != "" && a.TokenizationStatus != f.TokenizationStatus {
		return false
	}
	if f.ListingStatus != "" && a.ListingStatus != f.ListingStatus {
		return false
	}
	if f.MinValue != nil && a.TotalValue.LessThan(*f.MinValue) {
		return false
	}
	if f.MaxValue != nil && a.TotalValue.GreaterThan(*f.MaxValue) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(a.Name), needle) &&
			!strings.Contains(strings.ToLower(a.Description), needle) {
			return false
		}
	}
	return true
}

func (s *Store) ListAssets(_ context.Context, f asset.Filter, page storage.Page, sortBy storage.Sort) (storage.Paged[asset.Asset], error) {
	unlock := s.rlock()
	defer unlock()

	var matched []asset.Asset
	for _, a := range s.st.assets {
		if matchAsset(f, a) {
			matched = append(matched, a)
		}
	}

	sortBy = sortBy.Normalize()
	sort.Slice(matched, func(i, j int) bool {
		var less bool
		switch sortBy.Field {
		case "name":
			less = matched[i].Name < matched[j].Name
		case "totalValue":
			less = matched[i].TotalValue.LessThan(matched[j].TotalValue)
		case "pricePerToken":
			less = matched[i].PricePerToken.LessThan(matched[j].PricePerToken)
		default:
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if sortBy.Desc {
			return !less
		}
		return less
	})

	return pageSlice(matched, page), nil
}

func (s *Store) CountAssets(_ context.Context, f asset.Filter) (int64, error) {
	unlock := s.rlock()
	defer unlock()

	var n int64
	for _, a := range s.st.assets {
		if matchAsset(f, a) {
			n++
		}
	}
	return n, nil
}

// --- DocumentStore -----------------------------------------------------------

func (s *Store) CreateDocument(_ context.Context, d asset.Document) (asset.Document, error) {
	unlock := s.lock()
	defer unlock()

	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.CreatedAt = time.Now().UTC()
	s.st.documents[d.ID] = d
	return d, nil
}

func (s *Store) GetDocument(_ context.Context, id string) (asset.Document, error) {
	unlock := s.rlock()
	defer unlock()

	d, ok := s.st.documents[id]
	if !ok {
		return asset.Document{}, storage.ErrNotFound
	}
	return d, nil
}

func (s *Store) ListDocuments(_ context.Context, assetID string) ([]asset.Document, error) {
	unlock := s.rlock()
	defer unlock()

	var out []asset.Document
	for _, d := range s.st.documents {
		if d.AssetID == assetID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) DeleteDocument(_ context.Context, id string) error {
	unlock := s.lock()
	defer unlock()

	if _, ok := s.st.documents[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.st.documents, id)
	return nil
}

func (s *Store) DeleteDocumentsByAsset(_ context.Context, assetID string) error {
	unlock := s.lock()
	defer unlock()

	for id, d := range s.st.documents {
		if d.AssetID == assetID {
			delete(s.st.documents, id)
		}
	}
	return nil
}

// --- TransactionStore --------------------------------------------------------

func (s *Store) CreateTransaction(_ context.Context, tx trade.Transaction) (trade.Transaction, error) {
	unlock := s.lock()
	defer unlock()

	if tx.ID == "" {
		tx.ID = uuid.NewString()
	} else if _, exists := s.st.transactions[tx.ID]; exists {
		return trade.Transaction{}, storage.ErrDuplicate
	}
	now := time.Now().UTC()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	s.st.transactions[tx.ID] = tx
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx trade.Transaction) (trade.Transaction, error) {
	unlock := s.lock()
	defer unlock()

	existing, ok := s.st.transactions[tx.ID]
	if !ok {
		return trade.Transaction{}, storage.ErrNotFound
	}
	tx.CreatedAt = existing.CreatedAt
	tx.UpdatedAt = time.Now().UTC()
	s.st.transactions[tx.ID] = tx
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (trade.Transaction, error) {
	unlock := s.rlock()
	defer unlock()

	tx, ok := s.st.transactions[id]
	if !ok {
		return trade.Transaction{}, storage.ErrNotFound
	}
	return tx, nil
}

func (s *Store) GetTransactionForUpdate(ctx context.Context, id string) (trade.Transaction, error) {
	return s.GetTransaction(ctx, id)
}

func matchTransaction(f trade.Filter, tx trade.Transaction) bool {
	if f.BuyerID != "" && tx.BuyerID != f.BuyerID {
		return false
	}
	if f.AssetID != "" && tx.AssetID != f.AssetID {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.Status != "" && tx.Status != f.Status {
		return false
	}
	return true
}

func (s *Store) ListTransactions(_ context.Context, f trade.Filter, page storage.Page, sortBy storage.Sort) (storage.Paged[trade.Transaction], error) {
	unlock := s.rlock()
	defer unlock()

	var matched []trade.Transaction
	for _, tx := range s.st.transactions {
		if matchTransaction(f, tx) {
			matched = append(matched, tx)
		}
	}

	sortBy = sortBy.Normalize()
	sort.Slice(matched, func(i, j int) bool {
		var less bool
		switch sortBy.Field {
		case "amount":
			less = matched[i].Amount.LessThan(matched[j].Amount)
		default:
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if sortBy.Desc {
			return !less
		}
		return less
	})

	return pageSlice(matched, page), nil
}

func (s *Store) CountTransactionsByStatus(_ context.Context, f trade.Filter) (map[trade.Status]int64, error) {
	unlock := s.rlock()
	defer unlock()

	out := make(map[trade.Status]int64)
	for _, tx := range s.st.transactions {
		if matchTransaction(f, tx) {
			out[tx.Status]++
		}
	}
	return out, nil
}

func (s *Store) TransactionStats(_ context.Context, f trade.Filter) (trade.Stats, error) {
	unlock := s.rlock()
	defer unlock()

	stats := trade.Stats{TotalInvested: decimal.Zero}
	for _, tx := range s.st.transactions {
		if !matchTransaction(f, tx) {
			continue
		}
		stats.TotalTransactions++
		if tx.Status == trade.StatusCompleted {
			stats.CompletedTransactions++
			stats.TotalInvested = stats.TotalInvested.Add(tx.Amount)
			stats.TotalTokens += tx.TokenAmount
		}
	}
	return stats, nil
}

func (s *Store) AssetSaleStats(_ context.Context, assetID string) (int64, int64, error) {
	unlock := s.rlock()
	defer unlock()

	buyers := make(map[string]struct{})
	var completed int64
	for _, tx := range s.st.transactions {
		if tx.AssetID == assetID && tx.Status == trade.StatusCompleted {
			completed++
			buyers[tx.BuyerID] = struct{}{}
		}
	}
	return completed, int64(len(buyers)), nil
}

func (s *Store) ListStuckTransactions(_ context.Context, statuses []trade.Status, before time.Time) ([]trade.Transaction, error) {
	unlock := s.rlock()
	defer unlock()

	wanted := make(map[trade.Status]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}
	var out []trade.Transaction
	for _, tx := range s.st.transactions {
		if _, ok := wanted[tx.Status]; ok && tx.UpdatedAt.Before(before) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

// --- HoldingStore ------------------------------------------------------------

func holdingKey(profileID, assetID string) string {
	return profileID + "|" + assetID
}

func (s *Store) UpsertHolding(_ context.Context, profileID, assetID string, tokenDelta int64, costDelta decimal.Decimal) (trade.Holding, error) {
	unlock := s.lock()
	defer unlock()

	key := holdingKey(profileID, assetID)
	now := time.Now().UTC()
	h, ok := s.st.holdings[key]
	if !ok {
		h = trade.Holding{
			ID:                uuid.NewString(),
			InvestorProfileID: profileID,
			AssetID:           assetID,
			CostBasis:         decimal.Zero,
			CreatedAt:         now,
		}
	}
	h.TokenAmount += tokenDelta
	h.CostBasis = h.CostBasis.Add(costDelta)
	h.UpdatedAt = now
	s.st.holdings[key] = h
	return h, nil
}

func (s *Store) GetHolding(_ context.Context, profileID, assetID string) (trade.Holding, error) {
	unlock := s.rlock()
	defer unlock()

	h, ok := s.st.holdings[holdingKey(profileID, assetID)]
	if !ok {
		return trade.Holding{}, storage.ErrNotFound
	}
	return h, nil
}

func (s *Store) ListHoldingsByProfile(_ context.Context, profileID string) ([]trade.Holding, error) {
	unlock := s.rlock()
	defer unlock()

	var out []trade.Holding
	for _, h := range s.st.holdings {
		if h.InvestorProfileID == profileID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) SumHoldings(_ context.Context, assetID string) (int64, error) {
	unlock := s.rlock()
	defer unlock()

	var sum int64
	for _, h := range s.st.holdings {
		if h.AssetID == assetID {
			sum += h.TokenAmount
		}
	}
	return sum, nil
}

// --- AuctionStore ------------------------------------------------------------

func (s *Store) CreateAuction(_ context.Context, a auction.Auction) (auction.Auction, error) {
	unlock := s.lock()
	defer unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	} else if _, exists := s.st.auctions[a.ID]; exists {
		return auction.Auction{}, storage.ErrDuplicate
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	s.st.auctions[a.ID] = a
	return a, nil
}

func (s *Store) UpdateAuction(_ context.Context, a auction.Auction) (auction.Auction, error) {
	unlock := s.lock()
	defer unlock()

	existing, ok := s.st.auctions[a.ID]
	if !ok {
		return auction.Auction{}, storage.ErrNotFound
	}
	a.CreatedAt = existing.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.st.auctions[a.ID] = a
	return a, nil
}

func (s *Store) GetAuction(_ context.Context, id string) (auction.Auction, error) {
	unlock := s.rlock()
	defer unlock()

	a, ok := s.st.auctions[id]
	if !ok {
		return auction.Auction{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) GetAuctionForUpdate(ctx context.Context, id string) (auction.Auction, error) {
	return s.GetAuction(ctx, id)
}

func matchAuction(f auction.Filter, a auction.Auction) bool {
	if f.AssetID != "" && a.AssetID != f.AssetID {
		return false
	}
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.MinReserve != nil && a.ReservePrice.LessThan(*f.MinReserve) {
		return false
	}
	if f.MaxReserve != nil && a.ReservePrice.GreaterThan(*f.MaxReserve) {
		return false
	}
	return true
}

func (s *Store) ListAuctions(_ context.Context, f auction.Filter, page storage.Page, sortBy storage.Sort) (storage.Paged[auction.Auction], error) {
	unlock := s.rlock()
	defer unlock()

	var matched []auction.Auction
	for _, a := range s.st.auctions {
		if matchAuction(f, a) {
			matched = append(matched, a)
		}
	}

	sortBy = sortBy.Normalize()
	sort.Slice(matched, func(i, j int) bool {
		var less bool
		switch sortBy.Field {
		case "endTime":
			less = matched[i].EndTime.Before(matched[j].EndTime)
		case "reservePrice":
			less = matched[i].ReservePrice.LessThan(matched[j].ReservePrice)
		default:
			less = matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		if sortBy.Desc {
			return !less
		}
		return less
	})

	return pageSlice(matched, page), nil
}

func (s *Store) OverlappingAuctionExists(_ context.Context, assetID string, start, end time.Time) (bool, error) {
	unlock := s.rlock()
	defer unlock()

	for _, a := range s.st.auctions {
		if a.AssetID != assetID {
			continue
		}
		if a.Status != auction.StatusScheduled && a.Status != auction.StatusActive {
			continue
		}
		if a.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ActivateDue(_ context.Context, now time.Time) ([]auction.Auction, error) {
	unlock := s.lock()
	defer unlock()

	var flipped []auction.Auction
	for id, a := range s.st.auctions {
		if a.Status == auction.StatusScheduled && !a.StartTime.After(now) {
			a.Status = auction.StatusActive
			a.UpdatedAt = time.Now().UTC()
			s.st.auctions[id] = a
			flipped = append(flipped, a)
		}
	}
	return flipped, nil
}

func (s *Store) EndDue(_ context.Context, now time.Time) ([]auction.Auction, error) {
	unlock := s.lock()
	defer unlock()

	var flipped []auction.Auction
	for id, a := range s.st.auctions {
		if a.Status == auction.StatusActive && !a.EndTime.After(now) {
			a.Status = auction.StatusEnded
			a.UpdatedAt = time.Now().UTC()
			s.st.auctions[id] = a
			flipped = append(flipped, a)
		}
	}
	return flipped, nil
}

// --- BidStore ----------------------------------------------------------------

func (s *Store) CreateBid(_ context.Context, b auction.Bid) (auction.Bid, error) {
	unlock := s.lock()
	defer unlock()

	if b.ID == "" {
		b.ID = uuid.NewString()
	} else if _, exists := s.st.bids[b.ID]; exists {
		return auction.Bid{}, storage.ErrDuplicate
	}
	b.CreatedAt = time.Now().UTC()
	s.st.bids[b.ID] = b
	return b, nil
}

func (s *Store) UpdateBid(_ context.Context, b auction.Bid) (auction.Bid, error) {
	unlock := s.lock()
	defer unlock()

	existing, ok := s.st.bids[b.ID]
	if !ok {
		return auction.Bid{}, storage.ErrNotFound
	}
	b.CreatedAt = existing.CreatedAt
	s.st.bids[b.ID] = b
	return b, nil
}

func (s *Store) GetBid(_ context.Context, id string) (auction.Bid, error) {
	unlock := s.rlock()
	defer unlock()

	b, ok := s.st.bids[id]
	if !ok {
		return auction.Bid{}, storage.ErrNotFound
	}
	return b, nil
}

func (s *Store) DeleteBid(_ context.Context, id string) error {
	unlock := s.lock()
	defer unlock()

	if _, ok := s.st.bids[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.st.bids, id)
	return nil
}

func (s *Store) GetWinningBid(_ context.Context, auctionID string) (auction.Bid, error) {
	unlock := s.rlock()
	defer unlock()

	for _, b := range s.st.bids {
		if b.AuctionID == auctionID && b.IsWinning {
			return b, nil
		}
	}
	return auction.Bid{}, storage.ErrNotFound
}

func (s *Store) ListBidsByAuction(_ context.Context, auctionID string) ([]auction.Bid, error) {
	unlock := s.rlock()
	defer unlock()

	var out []auction.Bid
	for _, b := range s.st.bids {
		if b.AuctionID == auctionID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListBidHistory(ctx context.Context, auctionID string, page storage.Page) (storage.Paged[auction.Bid], error) {
	bids, err := s.ListBidsByAuction(ctx, auctionID)
	if err != nil {
		return storage.Paged[auction.Bid]{}, err
	}
	// Newest first.
	for i, j := 0, len(bids)-1; i < j; i, j = i+1, j-1 {
		bids[i], bids[j] = bids[j], bids[i]
	}
	return pageSlice(bids, page), nil
}

func pageSlice[T any](all []T, page storage.Page) storage.Paged[T] {
	page = page.Normalize()
	total := int64(len(all))
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Size
	if end > len(all) {
		end = len(all)
	}
	return storage.NewPaged(all[start:end], total, page)
}
