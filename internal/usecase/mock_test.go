//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/model"
	"khqr-payment-bot/internal/domain/ports/adapter"
	"khqr-payment-bot/internal/domain/ports/repository"
	"khqr-payment-bot/internal/infra/i18n"
)

// =============================
// Adapters
// =============================

// ---- Mock TelegramBotAdapter ----

type sentPhoto struct {
	ChatID int64
	Photo  adapter.Photo
}

type MockTelegramBot struct {
	mu       sync.Mutex
	Messages []string
	Photos   []sentPhoto

	SendMessageFunc func(ctx context.Context, chatID int64, text string) error
	SendPhotoFunc   func(ctx context.Context, chatID int64, photo adapter.Photo) error
}

var _ adapter.TelegramBotAdapter = (*MockTelegramBot)(nil)

func (m *MockTelegramBot) SendMessage(ctx context.Context, chatID int64, text string) error {
	m.mu.Lock()
	m.Messages = append(m.Messages, text)
	m.mu.Unlock()
	if m.SendMessageFunc != nil {
		return m.SendMessageFunc(ctx, chatID, text)
	}
	return nil
}

func (m *MockTelegramBot) SendPhoto(ctx context.Context, chatID int64, photo adapter.Photo) error {
	if m.SendPhotoFunc != nil {
		return m.SendPhotoFunc(ctx, chatID, photo)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Photos = append(m.Photos, sentPhoto{ChatID: chatID, Photo: photo})
	return nil
}

func (m *MockTelegramBot) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Messages) == 0 {
		return ""
	}
	return m.Messages[len(m.Messages)-1]
}

// ---- Mock PaymentProvider ----

type MockPaymentProvider struct {
	mu     sync.Mutex
	Checks int

	GenerateQRFunc   func(ctx context.Context, req adapter.QRRequest) (adapter.QRCode, error)
	CheckPaymentFunc func(ctx context.Context, md5 string) (adapter.TransactionStatus, error)
}

var _ adapter.PaymentProvider = (*MockPaymentProvider)(nil)

func (m *MockPaymentProvider) Name() string { return "mock" }

func (m *MockPaymentProvider) GenerateQR(ctx context.Context, req adapter.QRRequest) (adapter.QRCode, error) {
	if m.GenerateQRFunc != nil {
		return m.GenerateQRFunc(ctx, req)
	}
	return adapter.QRCode{Payload: "000201010212" + req.BillNumber, MD5: "md5-" + req.BillNumber}, nil
}

func (m *MockPaymentProvider) CheckPayment(ctx context.Context, md5 string) (adapter.TransactionStatus, error) {
	m.mu.Lock()
	m.Checks++
	m.mu.Unlock()
	if m.CheckPaymentFunc != nil {
		return m.CheckPaymentFunc(ctx, md5)
	}
	return adapter.TransactionStatus{}, nil
}

// ---- Mock QRRenderer ----

type MockRenderer struct {
	RenderPNGFunc func(payload string) ([]byte, error)
}

var _ adapter.QRRenderer = (*MockRenderer)(nil)

func (m *MockRenderer) RenderPNG(payload string) ([]byte, error) {
	if m.RenderPNGFunc != nil {
		return m.RenderPNGFunc(payload)
	}
	return []byte("png:" + payload), nil
}

// =============================
// Repositories
// =============================

// ---- Mock PaymentCheckRepository ----

type MockPaymentCheckRepo struct {
	mu   sync.Mutex
	byID map[string]*model.PaymentCheck

	SaveFunc            func(ctx context.Context, tx repository.Tx, p *model.PaymentCheck) error
	SettleIfPendingFunc func(ctx context.Context, tx repository.Tx, id string, status model.CheckStatus, attempt int, refHash string, settledAt time.Time) (bool, error)
}

var _ repository.PaymentCheckRepository = (*MockPaymentCheckRepo)(nil)

func NewMockPaymentCheckRepo() *MockPaymentCheckRepo {
	return &MockPaymentCheckRepo{byID: make(map[string]*model.PaymentCheck)}
}

func (m *MockPaymentCheckRepo) Save(ctx context.Context, tx repository.Tx, p *model.PaymentCheck) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.byID[p.ID] = &cp
	return nil
}

func (m *MockPaymentCheckRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PaymentCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *MockPaymentCheckRepo) FindByMD5(ctx context.Context, tx repository.Tx, md5 string) (*model.PaymentCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.byID {
		if p.MD5 == md5 {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockPaymentCheckRepo) UpdateAttempt(ctx context.Context, tx repository.Tx, id string, attempt int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if p.Status.Terminal() {
		return domain.ErrAlreadySettled
	}
	p.Attempt = attempt
	return nil
}

func (m *MockPaymentCheckRepo) SettleIfPending(ctx context.Context, tx repository.Tx, id string, status model.CheckStatus, attempt int, refHash string, settledAt time.Time) (bool, error) {
	if m.SettleIfPendingFunc != nil {
		return m.SettleIfPendingFunc(ctx, tx, id, status, attempt, refHash, settledAt)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status.Terminal() {
		return false, nil
	}
	p.Status = status
	p.Attempt = attempt
	p.RefHash = refHash
	p.SettledAt = &settledAt
	return true, nil
}

func (m *MockPaymentCheckRepo) ListPending(ctx context.Context, tx repository.Tx, limit int) ([]*model.PaymentCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.PaymentCheck
	for _, p := range m.byID {
		if p.Status == model.CheckStatusPending {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// newTestTranslator loads the embedded English locale so assertions match user-facing text.
func newTestTranslator() *i18n.Translator {
	translator, err := i18n.NewTranslator(i18n.LocalesFS, "en")
	if err != nil {
		panic(err)
	}
	return translator
}
