package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/community-market-backend/pkg/errors"
)

type sampleBody struct {
	Amount int64  `json:"amountCents" validate:"gt=0"`
	Kind   string `json:"kind" validate:"required,oneof=a b"`
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amountCents":0,"kind":"c"}`))
	var body sampleBody
	err := DecodeJSONBody(req, &body)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
	}
	if details["amountCents"] != "must be greater than 0" {
		t.Fatalf("unexpected amount message %q", details["amountCents"])
	}
	if details["kind"] != "must be one of a b" {
		t.Fatalf("unexpected kind message %q", details["kind"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amountCents":5,"kind":"a","extra":1}`))
	var body sampleBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestParseQueryIntBounds(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=500", nil)
	if _, err := ParseQueryInt(req, "limit", 25, 1, 100); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected out of range error, got %v", err)
	}
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	got, err := ParseQueryInt(req, "limit", 25, 1, 100)
	if err != nil || got != 25 {
		t.Fatalf("expected default 25, got %d err=%v", got, err)
	}
}

func TestParseUUIDParam(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("orderId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseUUIDParam(req, "orderId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s err=%v", id, got, err)
	}
	if _, err := ParseUUIDParam(req, "offerId"); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected missing param validation error, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  hello world ", 5); got != "hello" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestDecodeOptionalJSONBodyAcceptsEmptyBody(t *testing.T) {
	var body struct {
		ExpectedVersion *int64 `json:"expectedVersion"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", http.NoBody)
	if err := DecodeOptionalJSONBody(req, &body); err != nil {
		t.Fatalf("expected empty body to be accepted, got %v", err)
	}
	if body.ExpectedVersion != nil {
		t.Fatalf("expected nil version")
	}
}
