// Package investors manages the identity side of the marketplace: users,
// investor profiles, banks, KYC synchronization and portfolio queries.
package investors

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/Clearfield-Labs/asset_layer/internal/app/collab"
	"github.com/Clearfield-Labs/asset_layer/internal/app/domain/identity"
	"github.com/Clearfield-Labs/asset_layer/internal/app/storage"
	"github.com/Clearfield-Labs/asset_layer/internal/errors"
	"github.com/Clearfield-Labs/asset_layer/pkg/logger"
	"github.com/shopspring/decimal"
)

// Service exposes user, profile, bank and portfolio operations.
type Service struct {
	store storage.Store
	kyc   collab.KYC
	log   *logger.Logger
}

// New creates the investors service.
func New(store storage.Store, kyc collab.KYC, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("investors")
	}
	return &Service{store: store, kyc: kyc, log: log}
}

// CreateUserInput registers a platform user.
type CreateUserInput struct {
	Email         string        `json:"email"`
	WalletAddress string        `json:"walletAddress"`
	Role          identity.Role `json:"role"`
}

// CreateUser registers a user. Role defaults to INVESTOR; email and wallet
// are unique when present.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (identity.User, error) {
	if in.Email == "" && in.WalletAddress == "" {
		return identity.User{}, errors.InvalidInput("", "one of email or walletAddress is required")
	}
	role := in.Role
	if role == "" {
		role = identity.RoleInvestor
	}
	if !role.IsValid() {
		return identity.User{}, errors.InvalidInput("", "unknown role "+string(in.Role))
	}

	u, err := s.store.CreateUser(ctx, identity.User{
		Email:         strings.ToLower(in.Email),
		WalletAddress: in.WalletAddress,
		Role:          role,
		KYCStatus:     identity.KYCPending,
		IsActive:      true,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return identity.User{}, errors.Conflict("USER_EXISTS", "A user with this email or wallet already exists")
		}
		return identity.User{}, errors.Internal("create user", err)
	}

	s.log.WithField("userId", u.ID).Info("user created")
	return u, nil
}

// UpdateUserInput carries partial user updates. Nil fields are untouched.
type UpdateUserInput struct {
	Email         *string        `json:"email"`
	WalletAddress *string        `json:"walletAddress"`
	Role          *identity.Role `json:"role"`
	IsActive      *bool          `json:"isActive"`
}

// UpdateUser applies a partial update. KYC status is only changed through
// SyncKYC.
func (s *Service) UpdateUser(ctx context.Context, userID string, in UpdateUserInput) (identity.User, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return identity.User{}, err
	}

	if in.Email != nil {
		u.Email = strings.ToLower(*in.Email)
	}
	if in.WalletAddress != nil {
		u.WalletAddress = *in.WalletAddress
	}
	if in.Role != nil {
		if !in.Role.IsValid() {
			return identity.User{}, errors.InvalidInput("", "unknown role "+string(*in.Role))
		}
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}

	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return identity.User{}, errors.Conflict("USER_EXISTS", "A user with this email or wallet already exists")
		}
		return identity.User{}, errors.Internal("update user", err)
	}
	return updated, nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, userID string) (identity.User, error) {
	return s.getUser(ctx, userID)
}

// ProfileInput carries investor profile fields.
type ProfileInput struct {
	FirstName           string `json:"firstName"`
	LastName            string `json:"lastName"`
	Country             string `json:"country"`
	InvestorType        string `json:"investorType"`
	RiskTolerance       string `json:"riskTolerance"`
	AccreditationStatus string `json:"accreditationStatus"`
}

// UpsertProfile creates the user's investor profile or replaces its fields.
func (s *Service) UpsertProfile(ctx context.Context, userID string, in ProfileInput) (identity.InvestorProfile, error) {
	if in.FirstName == "" || in.LastName == "" {
		return identity.InvestorProfile{}, errors.InvalidInput("", "firstName and lastName are required")
	}
	if in.Country == "" {
		return identity.InvestorProfile{}, errors.InvalidInput("", "country is required")
	}
	if _, err := s.getUser(ctx, userID); err != nil {
		return identity.InvestorProfile{}, err
	}

	existing, err := s.store.GetProfileByUser(ctx, userID)
	switch {
	case err == nil:
		existing.FirstName = in.FirstName
		existing.LastName = in.LastName
		existing.Country = in.Country
		existing.InvestorType = in.InvestorType
		existing.RiskTolerance = in.RiskTolerance
		existing.AccreditationStatus = in.AccreditationStatus
		updated, err := s.store.UpdateProfile(ctx, existing)
		if err != nil {
			return identity.InvestorProfile{}, errors.Internal("update profile", err)
		}
		return updated, nil
	case stderrors.Is(err, storage.ErrNotFound):
		created, err := s.store.CreateProfile(ctx, identity.InvestorProfile{
			UserID:              userID,
			FirstName:           in.FirstName,
			LastName:            in.LastName,
			Country:             in.Country,
			InvestorType:        in.InvestorType,
			RiskTolerance:       in.RiskTolerance,
			AccreditationStatus: in.AccreditationStatus,
		})
		if err != nil {
			return identity.InvestorProfile{}, errors.Internal("create profile", err)
		}
		return created, nil
	default:
		return identity.InvestorProfile{}, errors.Internal("load profile", err)
	}
}

// GetProfile returns the user's investor profile.
func (s *Service) GetProfile(ctx context.Context, userID string) (identity.InvestorProfile, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return identity.InvestorProfile{}, err
	}
	p, err := s.store.GetProfileByUser(ctx, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return identity.InvestorProfile{}, errors.NotFound("PROFILE_NOT_FOUND", "User has no investor profile")
		}
		return identity.InvestorProfile{}, errors.Internal("load profile", err)
	}
	return p, nil
}

// SyncKYC pulls the user's verification state from the KYC collaborator and
// stores the mapped status. A user without a wallet cannot be verified.
func (s *Service) SyncKYC(ctx context.Context, userID string) (identity.User, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return identity.User{}, err
	}
	if u.WalletAddress == "" {
		return identity.User{}, errors.InvalidInput("NO_WALLET", "User has no wallet address to verify")
	}

	result, err := s.kyc.IsVerified(ctx, u.WalletAddress)
	if err != nil {
		return identity.User{}, errors.CollaboratorFailure("kyc", err)
	}

	previous := u.KYCStatus
	u.KYCStatus = mapKYCStatus(u.KYCStatus, result)
	if u.KYCStatus == previous {
		return u, nil
	}

	updated, err := s.store.UpdateUser(ctx, u)
	if err != nil {
		return identity.User{}, errors.Internal("update user", err)
	}
	s.log.WithFields(map[string]any{
		"userId": userID,
		"from":   string(previous),
		"to":     string(updated.KYCStatus),
	}).Info("kyc status synced")
	return updated, nil
}

// mapKYCStatus translates a collaborator verdict into a stored status. An
// unverified answer demotes a previously verified user to EXPIRED; otherwise
// the user is considered mid-process.
func mapKYCStatus(current identity.KYCStatus, result collab.KYCResult) identity.KYCStatus {
	if result.Verified {
		if !result.ExpiresAt.IsZero() && result.ExpiresAt.Before(time.Now().UTC()) {
			return identity.KYCExpired
		}
		return identity.KYCVerified
	}
	if current == identity.KYCVerified {
		return identity.KYCExpired
	}
	if current == identity.KYCPending {
		return identity.KYCInProgress
	}
	return current
}

// CreateBankInput registers an asset-issuing institution.
type CreateBankInput struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	AdminUserID string `json:"adminUserId"`
}

// CreateBank registers a bank. Codes are unique.
func (s *Service) CreateBank(ctx context.Context, in CreateBankInput) (identity.Bank, error) {
	if in.Name == "" || in.Code == "" {
		return identity.Bank{}, errors.InvalidInput("", "name and code are required")
	}
	if in.AdminUserID != "" {
		if _, err := s.getUser(ctx, in.AdminUserID); err != nil {
			return identity.Bank{}, err
		}
	}

	b, err := s.store.CreateBank(ctx, identity.Bank{
		Name:        in.Name,
		Code:        strings.ToUpper(in.Code),
		AdminUserID: in.AdminUserID,
	})
	if err != nil {
		if stderrors.Is(err, storage.ErrDuplicate) {
			return identity.Bank{}, errors.Conflict("BANK_EXISTS", "A bank with this code already exists")
		}
		return identity.Bank{}, errors.Internal("create bank", err)
	}
	s.log.WithFields(map[string]any{"bankId": b.ID, "code": b.Code}).Info("bank created")
	return b, nil
}

// GetBank returns one bank.
func (s *Service) GetBank(ctx context.Context, bankID string) (identity.Bank, error) {
	b, err := s.store.GetBank(ctx, bankID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return identity.Bank{}, errors.NotFound("BANK_NOT_FOUND", "Bank not found")
		}
		return identity.Bank{}, errors.Internal("load bank", err)
	}
	return b, nil
}

// ListBanks returns every registered bank.
func (s *Service) ListBanks(ctx context.Context) ([]identity.Bank, error) {
	banks, err := s.store.ListBanks(ctx)
	if err != nil {
		return nil, errors.Internal("list banks", err)
	}
	return banks, nil
}

// PortfolioPosition is one holding joined with its asset.
type PortfolioPosition struct {
	AssetID      string          `json:"assetId"`
	AssetName    string          `json:"assetName"`
	TokenAmount  int64           `json:"tokenAmount"`
	CostBasis    decimal.Decimal `json:"costBasis"`
	CurrentValue decimal.Decimal `json:"currentValue"`
}

// Portfolio is a user's aggregate position.
type Portfolio struct {
	Positions    []PortfolioPosition `json:"positions"`
	TotalTokens  int64               `json:"totalTokens"`
	TotalCost    decimal.Decimal     `json:"totalCost"`
	CurrentValue decimal.Decimal     `json:"currentValue"`
}

// GetPortfolio returns the user's holdings with per-position and aggregate
// valuation at current token prices.
func (s *Service) GetPortfolio(ctx context.Context, userID string) (Portfolio, error) {
	if _, err := s.getUser(ctx, userID); err != nil {
		return Portfolio{}, err
	}
	profile, err := s.store.GetProfileByUser(ctx, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return Portfolio{}, errors.NotFound("PROFILE_NOT_FOUND", "User has no investor profile")
		}
		return Portfolio{}, errors.Internal("load profile", err)
	}

	holdings, err := s.store.ListHoldingsByProfile(ctx, profile.ID)
	if err != nil {
		return Portfolio{}, errors.Internal("list holdings", err)
	}

	portfolio := Portfolio{
		Positions:    make([]PortfolioPosition, 0, len(holdings)),
		TotalCost:    decimal.Zero,
		CurrentValue: decimal.Zero,
	}
	for _, h := range holdings {
		a, err := s.store.GetAsset(ctx, h.AssetID)
		if err != nil {
			return Portfolio{}, errors.Internal("load asset", err)
		}
		value := a.PricePerToken.Mul(decimal.NewFromInt(h.TokenAmount))
		portfolio.Positions = append(portfolio.Positions, PortfolioPosition{
			AssetID:      h.AssetID,
			AssetName:    a.Name,
			TokenAmount:  h.TokenAmount,
			CostBasis:    h.CostBasis,
			CurrentValue: value,
		})
		portfolio.TotalTokens += h.TokenAmount
		portfolio.TotalCost = portfolio.TotalCost.Add(h.CostBasis)
		portfolio.CurrentValue = portfolio.CurrentValue.Add(value)
	}
	return portfolio, nil
}

func (s *Service) getUser(ctx context.Context, userID string) (identity.User, error) {
	u, err := s.store.GetUser(ctx, userID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return identity.User{}, errors.NotFound("USER_NOT_FOUND", "User not found")
		}
		return identity.User{}, errors.Internal("load user", err)
	}
	return u, nil
}
