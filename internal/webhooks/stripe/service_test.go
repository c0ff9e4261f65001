package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/angelmondragon/community-market-backend/internal/payments"
	"github.com/angelmondragon/community-market-backend/pkg/db/models"
	"github.com/angelmondragon/community-market-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
	"github.com/angelmondragon/community-market-backend/pkg/logger"
)

type stubFinder struct {
	txns map[string]*models.PaymentTransaction
	err  error
}

func (s *stubFinder) FindByExternalID(_ context.Context, externalID string) (*models.PaymentTransaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	if txn, ok := s.txns[externalID]; ok {
		return txn, nil
	}
	return nil, gorm.ErrRecordNotFound
}

type stubSettler struct {
	confirmed  []uuid.UUID
	failed     []payments.FailInput
	confirmErr error
}

func (s *stubSettler) Confirm(_ context.Context, id uuid.UUID) (*payments.ConfirmResult, error) {
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	s.confirmed = append(s.confirmed, id)
	return &payments.ConfirmResult{Success: true, TransactionID: id}, nil
}

func (s *stubSettler) MarkFailed(_ context.Context, input payments.FailInput) error {
	s.failed = append(s.failed, input)
	return nil
}

func newTestService(t *testing.T, finder *stubFinder, settler *stubSettler) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Transactions: finder,
		Settler:      settler,
		Logger:       logger.New(logger.Options{ServiceName: "webhook-test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func intentEvent(t *testing.T, eventType stripe.EventType, intent stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}
	return &stripe.Event{ID: "evt_" + uuid.NewString(), Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func pendingTxn(externalID string) *models.PaymentTransaction {
	return &models.PaymentTransaction{
		ID:               uuid.New(),
		UserID:           uuid.New(),
		Provider:         enums.PaymentProviderStripe,
		ExternalIntentID: externalID,
		PointsAmount:     500,
		Status:           enums.PaymentTransactionPending,
	}
}

func TestHandleSucceededUnknownIntentWarns(t *testing.T) {
	settler := &stubSettler{}
	svc := newTestService(t, &stubFinder{}, settler)

	result, err := svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_unknown"}))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Received || result.Warning == "" {
		t.Fatalf("expected received with warning, got %+v", result)
	}
	if len(settler.confirmed) != 0 {
		t.Fatalf("expected no confirmation")
	}
}

func TestHandleSucceededConfirmsPendingTransaction(t *testing.T) {
	txn := pendingTxn("pi_1")
	settler := &stubSettler{}
	svc := newTestService(t, &stubFinder{txns: map[string]*models.PaymentTransaction{"pi_1": txn}}, settler)

	result, err := svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded}))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if !result.Received || result.Warning != "" {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(settler.confirmed) != 1 || settler.confirmed[0] != txn.ID {
		t.Fatalf("expected confirmation of %s, got %v", txn.ID, settler.confirmed)
	}
}

func TestHandleSucceededSkipsSettledTransaction(t *testing.T) {
	txn := pendingTxn("pi_2")
	txn.Status = enums.PaymentTransactionSucceeded
	settler := &stubSettler{}
	svc := newTestService(t, &stubFinder{txns: map[string]*models.PaymentTransaction{"pi_2": txn}}, settler)

	if _, err := svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_2"})); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(settler.confirmed) != 0 {
		t.Fatalf("expected no confirmation for settled transaction")
	}
}

func TestHandleSucceededPropagatesConfirmationFailure(t *testing.T) {
	txn := pendingTxn("pi_3")
	settler := &stubSettler{confirmErr: pkgerrors.New(pkgerrors.CodeInternal, "db down")}
	svc := newTestService(t, &stubFinder{txns: map[string]*models.PaymentTransaction{"pi_3": txn}}, settler)

	_, err := svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_3"}))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeInternal {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestHandlePaymentFailedRecordsProviderMessage(t *testing.T) {
	txn := pendingTxn("pi_4")
	settler := &stubSettler{}
	svc := newTestService(t, &stubFinder{txns: map[string]*models.PaymentTransaction{"pi_4": txn}}, settler)

	intent := stripe.PaymentIntent{
		ID:               "pi_4",
		Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
		LastPaymentError: &stripe.Error{Msg: "Your card was declined."},
	}
	if _, err := svc.HandleEvent(context.Background(), intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, intent)); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(settler.failed) != 1 {
		t.Fatalf("expected one failure, got %d", len(settler.failed))
	}
	got := settler.failed[0]
	if got.TransactionID != txn.ID || got.Reason != "Your card was declined." || got.ProviderStatus != "requires_payment_method" {
		t.Fatalf("unexpected failure input %+v", got)
	}
}

func TestHandleIgnoresOtherEventTypes(t *testing.T) {
	svc := newTestService(t, &stubFinder{err: errors.New("should not be called")}, &stubSettler{})
	result, err := svc.HandleEvent(context.Background(), &stripe.Event{Type: stripe.EventTypeChargeRefunded, Data: &stripe.EventData{Raw: []byte(`{}`)}})
	if err != nil || !result.Received {
		t.Fatalf("expected no-op acknowledgement, got %+v %v", result, err)
	}
}

type memoryStore struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemoryStore() *memoryStore { return &memoryStore{keys: map[string]string{}} }

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "1"
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

func TestIdempotencyGuardClaimsOnce(t *testing.T) {
	guard, err := NewIdempotencyGuard(newMemoryStore(), time.Hour, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard: %v", err)
	}
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	if err != nil || seen {
		t.Fatalf("first claim should be fresh, seen=%v err=%v", seen, err)
	}
	seen, _ = guard.CheckAndMark(ctx, "evt_1")
	if !seen {
		t.Fatalf("second claim should be a duplicate")
	}
	if err := guard.Delete(ctx, "evt_1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	seen, _ = guard.CheckAndMark(ctx, "evt_1")
	if seen {
		t.Fatalf("claim after delete should be fresh")
	}
	if _, err := guard.CheckAndMark(ctx, ""); err == nil {
		t.Fatalf("expected error for empty event id")
	}
}
