package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/community-market-backend/pkg/enums"
)

const mockIntentPrefix = "mock_pi_"

// MockProvider settles without any external call. Its intents are always
// reported as succeeded so confirmation and reconciliation treat both
// providers alike.
type MockProvider struct{}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) Name() enums.PaymentProvider {
	return enums.PaymentProviderMock
}

func (m *MockProvider) CreateIntent(_ context.Context, req IntentRequest) (*ProviderIntent, error) {
	externalID := mockIntentPrefix + uuid.NewString()
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	return &ProviderIntent{
		ExternalID:   externalID,
		ClientSecret: externalID + "_secret_" + token,
		Metadata: map[string]string{
			"user_id":       req.UserID.String(),
			"points_amount": fmt.Sprintf("%d", req.PointsAmount),
		},
	}, nil
}

func (m *MockProvider) IntentStatus(_ context.Context, externalID string) (IntentStatus, error) {
	if !strings.HasPrefix(externalID, mockIntentPrefix) {
		return "", fmt.Errorf("not a mock intent: %q", externalID)
	}
	return IntentStatusSucceeded, nil
}
