package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const maxResponseBytes = 1 << 20 // 1 MiB

// ClientConfig addresses one HTTP collaborator.
type ClientConfig struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// client is the shared JSON-over-HTTP helper behind every adapter. POSTs are
// retried once on connection errors and 5xx responses; the idempotency key
// makes the retry safe on the collaborator side.
type client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

func newClient(cfg ClientConfig) *client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// post sends body as JSON and returns the parsed response. idempotencyKey is
// the engine entity ID the call is keyed by.
func (c *client) post(ctx context.Context, path, idempotencyKey string, body any) (gjson.Result, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
		if err != nil {
			return gjson.Result{}, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("X-Api-Key", c.apiKey)
		}
		if idempotencyKey != "" {
			req.Header.Set("X-Idempotency-Key", idempotencyKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return gjson.Result{}, ctx.Err()
			}
			continue
		}

		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		resp.Body.Close()
		if readErr != nil {
			return gjson.Result{}, fmt.Errorf("read response: %w", readErr)
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, data)
			continue
		}
		if resp.StatusCode >= 400 {
			return gjson.Result{}, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, data)
		}
		return gjson.ParseBytes(data), nil
	}
	return gjson.Result{}, lastErr
}

// --- Tokenization ------------------------------------------------------------

type httpTokenization struct {
	*client
}

// NewHTTPTokenization returns a Tokenization adapter for the given endpoint.
func NewHTTPTokenization(cfg ClientConfig) Tokenization {
	return &httpTokenization{client: newClient(cfg)}
}

func (t *httpTokenization) CreateOffering(ctx context.Context, params OfferingParams) (string, error) {
	res, err := t.post(ctx, "/offerings", params.AssetID, params)
	if err != nil {
		return "", err
	}
	offeringID := res.Get("offeringId").String()
	if offeringID == "" {
		return "", fmt.Errorf("tokenization response missing offeringId")
	}
	return offeringID, nil
}

func (t *httpTokenization) DeployToken(ctx context.Context, offeringID string) (TokenDeployment, error) {
	res, err := t.post(ctx, "/offerings/"+offeringID+"/deploy", offeringID, map[string]string{"offeringId": offeringID})
	if err != nil {
		return TokenDeployment{}, err
	}
	deployment := TokenDeployment{
		MintAddress: res.Get("mintAddress").String(),
		MetadataURI: res.Get("metadataUri").String(),
		TxSignature: res.Get("txSignature").String(),
	}
	if deployment.MintAddress == "" {
		return TokenDeployment{}, fmt.Errorf("tokenization response missing mintAddress")
	}
	return deployment, nil
}

// --- Escrow ------------------------------------------------------------------

type httpEscrow struct {
	*client
}

// NewHTTPEscrow returns an Escrow adapter for the given endpoint.
func NewHTTPEscrow(cfg ClientConfig) Escrow {
	return &httpEscrow{client: newClient(cfg)}
}

func (e *httpEscrow) Open(ctx context.Context, req EscrowRequest) (string, error) {
	res, err := e.post(ctx, "/escrows", req.ReferenceID, req)
	if err != nil {
		return "", err
	}
	address := res.Get("escrowAddress").String()
	if address == "" {
		return "", fmt.Errorf("escrow response missing escrowAddress")
	}
	return address, nil
}

func (e *httpEscrow) Release(ctx context.Context, referenceID string) error {
	_, err := e.post(ctx, "/escrows/"+referenceID+"/release", referenceID, map[string]string{"referenceId": referenceID})
	return err
}

func (e *httpEscrow) Refund(ctx context.Context, referenceID, recipient string) error {
	_, err := e.post(ctx, "/escrows/"+referenceID+"/refund", referenceID, map[string]string{
		"referenceId": referenceID,
		"recipient":   recipient,
	})
	return err
}

// --- Payment -----------------------------------------------------------------

type httpPayment struct {
	*client
}

// NewHTTPPayment returns a Payment adapter for the given endpoint.
func NewHTTPPayment(cfg ClientConfig) Payment {
	return &httpPayment{client: newClient(cfg)}
}

func (p *httpPayment) VerifyInbound(ctx context.Context, signature string, expectedAmount decimal.Decimal, destination string) (bool, error) {
	res, err := p.post(ctx, "/payments/verify", signature, map[string]any{
		"signature":      signature,
		"expectedAmount": expectedAmount,
		"destination":    destination,
	})
	if err != nil {
		return false, err
	}
	return res.Get("verified").Bool(), nil
}

func (p *httpPayment) TransferOut(ctx context.Context, from, to string, amount decimal.Decimal) (string, error) {
	res, err := p.post(ctx, "/payments/transfer", from+":"+to, map[string]any{
		"from":   from,
		"to":     to,
		"amount": amount,
	})
	if err != nil {
		return "", err
	}
	signature := res.Get("signature").String()
	if signature == "" {
		return "", fmt.Errorf("payment response missing signature")
	}
	return signature, nil
}

// --- Token transfer ----------------------------------------------------------

type httpTransfer struct {
	*client

	mu        sync.RWMutex
	tokenInfo map[string]int64 // mint → decimals
}

// NewHTTPTransfer returns a TokenTransfer adapter for the given endpoint.
func NewHTTPTransfer(cfg ClientConfig) TokenTransfer {
	return &httpTransfer{client: newClient(cfg), tokenInfo: make(map[string]int64)}
}

// decimalsFor fetches the mint's decimal count once and caches it.
func (t *httpTransfer) decimalsFor(ctx context.Context, mint string) (int64, error) {
	t.mu.RLock()
	decimals, ok := t.tokenInfo[mint]
	t.mu.RUnlock()
	if ok {
		return decimals, nil
	}

	res, err := t.post(ctx, "/tokens/info", mint, map[string]string{"mint": mint})
	if err != nil {
		return 0, err
	}
	decimals = res.Get("decimals").Int()

	t.mu.Lock()
	t.tokenInfo[mint] = decimals
	t.mu.Unlock()
	return decimals, nil
}

func (t *httpTransfer) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	decimals, err := t.decimalsFor(ctx, req.Mint)
	if err != nil {
		return "", err
	}

	res, err := t.post(ctx, "/tokens/transfer", req.ReferenceID, map[string]any{
		"referenceId": req.ReferenceID,
		"mint":        req.Mint,
		"from":        req.From,
		"to":          req.To,
		"amount":      req.Amount,
		"decimals":    decimals,
	})
	if err != nil {
		return "", err
	}
	signature := res.Get("signature").String()
	if signature == "" {
		return "", fmt.Errorf("transfer response missing signature")
	}
	return signature, nil
}

// --- KYC ---------------------------------------------------------------------

type httpKYC struct {
	*client
}

// NewHTTPKYC returns a KYC adapter for the given endpoint.
func NewHTTPKYC(cfg ClientConfig) KYC {
	return &httpKYC{client: newClient(cfg)}
}

func (k *httpKYC) IsVerified(ctx context.Context, walletAddress string) (KYCResult, error) {
	res, err := k.post(ctx, "/kyc/check", walletAddress, map[string]string{"walletAddress": walletAddress})
	if err != nil {
		return KYCResult{}, err
	}
	result := KYCResult{
		Verified: res.Get("verified").Bool(),
		Level:    res.Get("level").String(),
	}
	if expires := res.Get("expiresAt").String(); expires != "" {
		if t, err := time.Parse(time.RFC3339, expires); err == nil {
			result.ExpiresAt = t
		}
	}
	return result, nil
}
