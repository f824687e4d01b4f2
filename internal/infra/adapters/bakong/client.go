// Package bakong talks to the National Bank of Cambodia's Bakong open API and
// builds the KHQR payloads it settles.
package bakong

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"khqr-payment-bot/internal/config"
	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/ports/adapter"
	"khqr-payment-bot/internal/infra/metrics"
)

var _ adapter.PaymentProvider = (*Provider)(nil)

const checkByMD5Path = "/v1/check_transaction_by_md5"

// Provider implements adapter.PaymentProvider against the Bakong API, either
// directly or through the KHQR proxy.
type Provider struct {
	merchant Merchant
	baseURL  string
	token    string
	apiKey   string
	client   *http.Client
	cb       *gobreaker.CircuitBreaker
	logger   *zerolog.Logger
	now      func() time.Time
}

func NewProvider(cfg *config.BakongConfig, logger *zerolog.Logger) (*Provider, error) {
	if cfg.AccountID == "" {
		return nil, errors.New("bakong account id empty")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("bakong base url empty")
	}
	l := logger.With().Str("component", "bakong").Logger()
	p := &Provider{
		merchant: Merchant{
			AccountID:     cfg.AccountID,
			Name:          cfg.Merchant.Name,
			City:          cfg.Merchant.City,
			StoreLabel:    cfg.Merchant.StoreLabel,
			PhoneNumber:   cfg.Merchant.PhoneNumber,
			TerminalLabel: cfg.Merchant.TerminalLabel,
		},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		apiKey:  cfg.ProxyAPIKey,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  &l,
		now:     time.Now,
	}
	p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "bakong",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.SetBakongBreakerState(int(to))
			p.logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return p, nil
}

func (p *Provider) Name() string { return "bakong" }

// GenerateQR encodes the payload locally; Bakong indexes it by MD5 once paid.
func (p *Provider) GenerateQR(ctx context.Context, req adapter.QRRequest) (adapter.QRCode, error) {
	payload, err := EncodeKHQR(p.merchant, Payment{
		Amount:     req.Amount,
		BillNumber: req.BillNumber,
		CreatedAt:  p.now(),
		ExpiresAt:  req.ExpiresAt,
	})
	if err != nil {
		return adapter.QRCode{}, fmt.Errorf("%w: %v", domain.ErrQRGeneration, err)
	}
	return adapter.QRCode{Payload: payload, MD5: MD5(payload)}, nil
}

type checkResponse struct {
	ResponseCode    int    `json:"responseCode"`
	ResponseMessage string `json:"responseMessage"`
	ErrorCode       *int   `json:"errorCode"`
	Data            *struct {
		Hash               string  `json:"hash"`
		FromAccountID      string  `json:"fromAccountId"`
		ToAccountID        string  `json:"toAccountId"`
		Currency           string  `json:"currency"`
		Amount             float64 `json:"amount"`
		AcknowledgedDateMs int64   `json:"acknowledgedDateMs"`
	} `json:"data"`
}

// CheckPayment calls /v1/check_transaction_by_md5. A responseCode of 0 means paid;
// any other well-formed answer means not paid yet.
func (p *Provider) CheckPayment(ctx context.Context, md5 string) (adapter.TransactionStatus, error) {
	start := time.Now()
	res, err := p.cb.Execute(func() (interface{}, error) {
		return p.postCheck(ctx, md5)
	})
	outcome := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		outcome = "breaker_open"
	case err != nil:
		outcome = "error"
	}
	metrics.ObserveBakongRequest("check_transaction_by_md5", outcome, time.Since(start))
	if err != nil {
		return adapter.TransactionStatus{}, fmt.Errorf("check transaction: %w", err)
	}

	out := res.(*checkResponse)
	if out.ResponseCode != 0 || out.Data == nil {
		p.logger.Debug().Str("message", out.ResponseMessage).Msg("transaction not found yet")
		return adapter.TransactionStatus{}, nil
	}
	st := adapter.TransactionStatus{
		Paid:        true,
		Hash:        out.Data.Hash,
		FromAccount: out.Data.FromAccountID,
		Amount:      out.Data.Amount,
		Currency:    out.Data.Currency,
	}
	if out.Data.AcknowledgedDateMs > 0 {
		t := time.UnixMilli(out.Data.AcknowledgedDateMs)
		st.AcknowledgedAt = &t
	}
	return st, nil
}

func (p *Provider) postCheck(ctx context.Context, md5 string) (*checkResponse, error) {
	b, _ := json.Marshal(map[string]string{"md5": md5})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+checkByMD5Path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}
	if p.apiKey != "" {
		req.Header.Set("X-API-KEY", p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: http %d: %s", domain.ErrProviderStatus, resp.StatusCode, bytes.TrimSpace(body))
	}
	var out checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}
