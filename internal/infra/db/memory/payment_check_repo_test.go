//go:build !integration

package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"khqr-payment-bot/internal/domain"
	"khqr-payment-bot/internal/domain/model"
)

func mustCheck(t *testing.T, chatID int64, md5 string) *model.PaymentCheck {
	t.Helper()
	p, err := model.NewPaymentCheck(chatID, 1, "payload", md5, model.Money{Minor: 100, Currency: model.CurrencyKHR}, 2, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestPaymentCheckRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("should return copies, not shared pointers", func(t *testing.T) {
		repo := NewPaymentCheckRepo()
		p := mustCheck(t, 1, "m1")
		_ = repo.Save(ctx, nil, p)
		got, _ := repo.FindByMD5(ctx, nil, "m1")
		got.Attempt = 99
		again, _ := repo.FindByID(ctx, nil, p.ID)
		if again.Attempt != 0 {
			t.Fatal("mutating a returned record must not change the store")
		}
	})

	t.Run("should reject a duplicate hash", func(t *testing.T) {
		repo := NewPaymentCheckRepo()
		_ = repo.Save(ctx, nil, mustCheck(t, 1, "dup"))
		if err := repo.Save(ctx, nil, mustCheck(t, 2, "dup")); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("should settle once and drop from pending", func(t *testing.T) {
		repo := NewPaymentCheckRepo()
		a, b := mustCheck(t, 1, "a"), mustCheck(t, 2, "b")
		b.CreatedAt = a.CreatedAt.Add(time.Second)
		_ = repo.Save(ctx, nil, b)
		_ = repo.Save(ctx, nil, a)

		pending, _ := repo.ListPending(ctx, nil, 0)
		if len(pending) != 2 || pending[0].ID != a.ID {
			t.Fatalf("expected a then b, got %v", pending)
		}

		ok, err := repo.SettleIfPending(ctx, nil, a.ID, model.CheckStatusPaid, 1, "h", time.Now())
		if err != nil || !ok {
			t.Fatalf("settle: ok=%v err=%v", ok, err)
		}
		ok, _ = repo.SettleIfPending(ctx, nil, a.ID, model.CheckStatusExpired, 2, "", time.Now())
		if ok {
			t.Fatal("second settle must be a no-op")
		}
		if err := repo.UpdateAttempt(ctx, nil, a.ID, 2); !errors.Is(err, domain.ErrAlreadySettled) {
			t.Fatalf("expected ErrAlreadySettled, got %v", err)
		}

		pending, _ = repo.ListPending(ctx, nil, 0)
		if len(pending) != 1 || pending[0].ID != b.ID {
			t.Fatalf("expected only b pending, got %v", pending)
		}
	})

	t.Run("should report missing records", func(t *testing.T) {
		repo := NewPaymentCheckRepo()
		if _, err := repo.FindByID(ctx, nil, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := repo.UpdateAttempt(ctx, nil, "nope", 1); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}
