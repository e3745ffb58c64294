package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/hualingluo/InteractiveMovie/internal/domain/enums"
)

type ReceiptVerdict struct {
	TransactionID string
	Valid         bool
	Reason        string
}

// StoreProvider resolves a client receipt to the store's canonical
// transaction id. Real deployments call Apple or Google server-to-server.
type StoreProvider interface {
	VerifyReceipt(ctx context.Context, platform enums.Platform, receipt string) (ReceiptVerdict, error)
}

var receiptNamespace = uuid.MustParse("6f1c8a52-4d0e-4b7a-9a57-2c1f0e7d9b41")

// StubStoreProvider accepts any non-empty receipt. The transaction id is
// derived from the receipt so a replayed receipt resolves to the same id.
type StubStoreProvider struct{}

func (StubStoreProvider) VerifyReceipt(ctx context.Context, platform enums.Platform, receipt string) (ReceiptVerdict, error) {
	if err := ctx.Err(); err != nil {
		return ReceiptVerdict{}, err
	}
	if strings.TrimSpace(receipt) == "" {
		return ReceiptVerdict{Valid: false, Reason: "empty receipt"}, nil
	}
	id := uuid.NewSHA1(receiptNamespace, []byte(string(platform)+":"+receipt))
	return ReceiptVerdict{TransactionID: string(platform) + "_" + id.String(), Valid: true}, nil
}

type HTTPStoreProviderConfig struct {
	Endpoint      string
	SharedSecret  string
	Sandbox       bool
	RatePerSecond float64
	Burst         int
}

// HTTPStoreProvider posts receipts to a verification endpoint that fronts the
// platform stores. Outbound calls are throttled.
type HTTPStoreProvider struct {
	client   *http.Client
	endpoint string
	secret   string
	sandbox  bool
	limiter  *rate.Limiter
}

type receiptRequest struct {
	Platform string `json:"platform"`
	Receipt  string `json:"receipt"`
	Sandbox  bool   `json:"sandbox,omitempty"`
}

type receiptResponse struct {
	Valid         bool   `json:"valid"`
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason,omitempty"`
}

func NewHTTPStoreProvider(client *http.Client, cfg HTTPStoreProviderConfig) *HTTPStoreProvider {
	if client == nil {
		client = http.DefaultClient
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &HTTPStoreProvider{
		client:   client,
		endpoint: strings.TrimSpace(cfg.Endpoint),
		secret:   cfg.SharedSecret,
		sandbox:  cfg.Sandbox,
		limiter:  rate.NewLimiter(limit, burst),
	}
}

func (p *HTTPStoreProvider) VerifyReceipt(ctx context.Context, platform enums.Platform, receipt string) (ReceiptVerdict, error) {
	if p.endpoint == "" {
		return ReceiptVerdict{}, fmt.Errorf("store provider endpoint is not configured")
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return ReceiptVerdict{}, fmt.Errorf("store provider throttle: %w", err)
	}

	body, err := json.Marshal(receiptRequest{Platform: string(platform), Receipt: receipt, Sandbox: p.sandbox})
	if err != nil {
		return ReceiptVerdict{}, fmt.Errorf("encode receipt request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return ReceiptVerdict{}, fmt.Errorf("build receipt request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.secret != "" {
		req.Header.Set("X-Verification-Secret", p.secret)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return ReceiptVerdict{}, fmt.Errorf("call store provider: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ReceiptVerdict{}, fmt.Errorf("read store provider response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return ReceiptVerdict{}, fmt.Errorf("store provider status %d", resp.StatusCode)
	}

	var decoded receiptResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return ReceiptVerdict{}, fmt.Errorf("decode store provider response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest && decoded.Reason == "" {
		decoded.Reason = fmt.Sprintf("store provider status %d", resp.StatusCode)
		decoded.Valid = false
	}

	return ReceiptVerdict{
		TransactionID: strings.TrimSpace(decoded.TransactionID),
		Valid:         decoded.Valid && resp.StatusCode < http.StatusBadRequest,
		Reason:        decoded.Reason,
	}, nil
}
