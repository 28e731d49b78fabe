package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Intent struct {
	PaymentOrderNo string `json:"payment_order_no"`
	Amount         int64  `json:"amount"`
	Method         string `json:"method"`
	Description    string `json:"description"`
	PayerRef       string `json:"payer_ref,omitempty"`
}

// Gateway is the external payment provider. Settlement arrives later and
// asynchronously, either as an HTTP callback or on the callback topic.
type Gateway interface {
	CreateIntent(ctx context.Context, in Intent) (providerRef string, err error)
	Refund(ctx context.Context, providerRef string, amount int64) error
}

// Sandbox accepts every request and issues local provider references.
type Sandbox struct{}

func (Sandbox) CreateIntent(_ context.Context, in Intent) (string, error) {
	if in.Amount <= 0 {
		return "", fmt.Errorf("sandbox: non-positive amount %d", in.Amount)
	}
	return "sbx_" + strings.ReplaceAll(uuid.NewString(), "-", ""), nil
}

func (Sandbox) Refund(context.Context, string, int64) error { return nil }

type HTTP struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTP(baseURL string, timeout time.Duration) *HTTP {
	return &HTTP{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type intentResp struct {
	ProviderRef string `json:"provider_ref"`
	Error       string `json:"error,omitempty"`
}

func (g *HTTP) CreateIntent(ctx context.Context, in Intent) (string, error) {
	var out intentResp
	if err := g.post(ctx, "/intents", in, &out); err != nil {
		return "", err
	}
	if out.ProviderRef == "" {
		return "", fmt.Errorf("gateway: empty provider_ref")
	}
	return out.ProviderRef, nil
}

func (g *HTTP) Refund(ctx context.Context, providerRef string, amount int64) error {
	body := map[string]any{"provider_ref": providerRef, "amount": amount}
	return g.post(ctx, "/refunds", body, nil)
}

func (g *HTTP) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey(in))

	resp, err := g.Client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("gateway %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gateway %s: decode: %w", path, err)
	}
	return nil
}

func idempotencyKey(in any) string {
	if it, ok := in.(Intent); ok {
		return it.PaymentOrderNo
	}
	return uuid.NewString()
}
