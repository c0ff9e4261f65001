package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/angelmondragon/community-market-backend/pkg/config"
)

func TestNewClientValidatesKeys(t *testing.T) {
	ctx := context.Background()
	if _, err := NewClient(ctx, config.StripeConfig{Env: "test"}, nil); !errors.Is(err, errAPIKeyRequired) {
		t.Fatalf("expected api key required, got %v", err)
	}
	if _, err := NewClient(ctx, config.StripeConfig{Env: "live", APIKey: "sk_test_123"}, nil); err == nil {
		t.Fatalf("expected live env to reject test key")
	}
	if _, err := NewClient(ctx, config.StripeConfig{Env: "staging", APIKey: "sk_test_123"}, nil); err == nil {
		t.Fatalf("expected invalid env error")
	}

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Environment() != "test" {
		t.Fatalf("expected test env, got %q", client.Environment())
	}
	if client.VerifiesSignatures() {
		t.Fatalf("no secret configured, signatures should not be verified")
	}
}

func TestConstructEventVerifiesSignature(t *testing.T) {
	secret := "whsec_test"
	client := NewWebhookVerifier(secret)
	payload := []byte(`{"id":"evt_1","object":"event","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

	header := signedHeader(payload, secret, time.Now())
	event, err := client.ConstructEvent(payload, header)
	if err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("unexpected event id %q", event.ID)
	}

	if _, err := client.ConstructEvent(payload, signedHeader(payload, "whsec_other", time.Now())); err == nil {
		t.Fatalf("expected signature mismatch")
	}
	if _, err := client.ConstructEvent(payload, ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected missing signature error, got %v", err)
	}
}

func TestConstructEventWithoutSecretParsesPayload(t *testing.T) {
	client := NewWebhookVerifier("")
	event, err := client.ConstructEvent([]byte(`{"id":"evt_2","type":"payment_intent.payment_failed"}`), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(event.Type) != "payment_intent.payment_failed" {
		t.Fatalf("unexpected type %q", event.Type)
	}
	if _, err := client.ConstructEvent([]byte(`not-json`), ""); err == nil {
		t.Fatalf("expected decode error")
	}
}

func signedHeader(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts.Unix(), payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
