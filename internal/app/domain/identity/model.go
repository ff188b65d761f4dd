// Package identity holds the user-facing aggregates: platform users, their
// investor profiles and the banks that register assets.
package identity

import "time"

// Role enumerates platform roles.
type Role string

const (
	RolePlatformAdmin Role = "PLATFORM_ADMIN"
	RoleBankAdmin     Role = "BANK_ADMIN"
	RoleBankViewer    Role = "BANK_VIEWER"
	RoleInvestor      Role = "INVESTOR"
	RoleAuditor       Role = "AUDITOR"
)

// IsValid reports whether the role is a known value.
func (r Role) IsValid() bool {
	switch r {
	case RolePlatformAdmin, RoleBankAdmin, RoleBankViewer, RoleInvestor, RoleAuditor:
		return true
	}
	return false
}

// KYCStatus enumerates verification states.
type KYCStatus string

const (
	KYCPending    KYCStatus = "PENDING"
	KYCInProgress KYCStatus = "IN_PROGRESS"
	KYCVerified   KYCStatus = "VERIFIED"
	KYCRejected   KYCStatus = "REJECTED"
	KYCExpired    KYCStatus = "EXPIRED"
)

// IsValid reports whether the status is a known value.
func (s KYCStatus) IsValid() bool {
	switch s {
	case KYCPending, KYCInProgress, KYCVerified, KYCRejected, KYCExpired:
		return true
	}
	return false
}

// User is a platform account. Email and WalletAddress are unique when set.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email,omitempty"`
	WalletAddress string    `json:"walletAddress,omitempty"`
	Role          Role      `json:"role"`
	KYCStatus     KYCStatus `json:"kycStatus"`
	IsActive      bool      `json:"isActive"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// InvestorProfile is the 1:1 investor record for a user.
type InvestorProfile struct {
	ID                  string    `json:"id"`
	UserID              string    `json:"userId"`
	FirstName           string    `json:"firstName"`
	LastName            string    `json:"lastName"`
	Country             string    `json:"country"`
	InvestorType        string    `json:"investorType"`
	RiskTolerance       string    `json:"riskTolerance,omitempty"`
	AccreditationStatus string    `json:"accreditationStatus,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// Bank is an asset-issuing institution. Code is unique.
type Bank struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	AdminUserID string    `json:"adminUserId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
