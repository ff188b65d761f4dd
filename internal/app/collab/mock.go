package collab

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"
)

// Call is one recorded collaborator invocation.
type Call struct {
	Op   string
	Args map[string]any
}

// Mock is a deterministic in-process implementation of every collaborator.
// Identifiers are derived from the entity IDs so repeated calls return the
// same values, and failures can be injected per operation for tests.
type Mock struct {
	mu       sync.Mutex
	calls    []Call
	failures map[string]error
	verified map[string]bool
}

var (
	_ Tokenization  = (*Mock)(nil)
	_ Escrow        = (*Mock)(nil)
	_ Payment       = (*Mock)(nil)
	_ TokenTransfer = (*Mock)(nil)
	_ KYC           = (*Mock)(nil)
)

// NewMock creates a mock collaborator set where every wallet is verified.
func NewMock() *Mock {
	return &Mock{
		failures: make(map[string]error),
		verified: make(map[string]bool),
	}
}

// NewMockSet bundles one Mock behind every collaborator interface.
func NewMockSet() (Set, *Mock) {
	m := NewMock()
	return Set{Tokenization: m, Escrow: m, Payment: m, Transfer: m, KYC: m}, m
}

// FailWith makes the next invocation of op return err. One-shot.
func (m *Mock) FailWith(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// SetVerified overrides the KYC answer for a wallet. Wallets without an
// override are verified.
func (m *Mock) SetVerified(wallet string, verified bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verified[wallet] = verified
}

// Calls returns the recorded invocations of op, or all when op is empty.
func (m *Mock) Calls(op string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Call
	for _, c := range m.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (m *Mock) record(op string, args map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Op: op, Args: args})
	if err, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return err
	}
	return nil
}

func (m *Mock) CreateOffering(ctx context.Context, params OfferingParams) (string, error) {
	if err := m.record("CreateOffering", map[string]any{"assetId": params.AssetID, "symbol": params.Symbol}); err != nil {
		return "", err
	}
	return "offering-" + params.AssetID, nil
}

func (m *Mock) DeployToken(ctx context.Context, offeringID string) (TokenDeployment, error) {
	if err := m.record("DeployToken", map[string]any{"offeringId": offeringID}); err != nil {
		return TokenDeployment{}, err
	}
	return TokenDeployment{
		MintAddress: "mint-" + offeringID,
		MetadataURI: "ipfs://meta/" + offeringID,
		TxSignature: "sig-deploy-" + offeringID,
	}, nil
}

func (m *Mock) Open(ctx context.Context, req EscrowRequest) (string, error) {
	if err := m.record("EscrowOpen", map[string]any{"referenceId": req.ReferenceID, "amount": req.Amount.String()}); err != nil {
		return "", err
	}
	return "escrow-" + req.ReferenceID, nil
}

func (m *Mock) Release(ctx context.Context, referenceID string) error {
	return m.record("EscrowRelease", map[string]any{"referenceId": referenceID})
}

func (m *Mock) Refund(ctx context.Context, referenceID, recipient string) error {
	return m.record("EscrowRefund", map[string]any{"referenceId": referenceID, "recipient": recipient})
}

func (m *Mock) VerifyInbound(ctx context.Context, signature string, expectedAmount decimal.Decimal, destination string) (bool, error) {
	if err := m.record("VerifyInbound", map[string]any{"signature": signature, "amount": expectedAmount.String()}); err != nil {
		return false, err
	}
	return signature != "", nil
}

func (m *Mock) TransferOut(ctx context.Context, from, to string, amount decimal.Decimal) (string, error) {
	if err := m.record("TransferOut", map[string]any{"from": from, "to": to, "amount": amount.String()}); err != nil {
		return "", err
	}
	return "sig-payout-" + to, nil
}

func (m *Mock) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if err := m.record("TokenTransfer", map[string]any{"referenceId": req.ReferenceID, "mint": req.Mint, "amount": req.Amount}); err != nil {
		return "", err
	}
	return "sig-transfer-" + req.ReferenceID, nil
}

func (m *Mock) IsVerified(ctx context.Context, walletAddress string) (KYCResult, error) {
	if err := m.record("IsVerified", map[string]any{"wallet": walletAddress}); err != nil {
		return KYCResult{}, err
	}
	verified, overridden := m.verified[walletAddress]
	if !overridden {
		verified = true
	}
	return KYCResult{Verified: verified, Level: "standard"}, nil
}
