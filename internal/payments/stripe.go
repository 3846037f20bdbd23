package payments

import (
	"context"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/account"
)

// Capabilities is the read-only payment state of one Connect account, the
// authoritative source behind the stripe* flags on driver documents.
type Capabilities struct {
	AccountID        string `json:"accountId"`
	ChargesEnabled   bool   `json:"chargesEnabled"`
	DetailsSubmitted bool   `json:"detailsSubmitted"`
	PayoutsEnabled   bool   `json:"payoutsEnabled"`
	Status           string `json:"status"` // pending | verified | restricted
	DisabledReason   string `json:"disabledReason,omitempty"`
}

// StripeClient is a thin wrapper around stripe-go for Connect account
// lookups. This dashboard never writes to Stripe.
type StripeClient struct{}

// NewStripeClient initializes the stripe client with the given API key.
func NewStripeClient(apiKey string) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{}
}

// AccountCapabilities retrieves a Connect account and reduces it to the
// capability view the driver detail panel shows.
func (s *StripeClient) AccountCapabilities(ctx context.Context, accountID string) (Capabilities, error) {
	acct, err := account.GetByID(accountID, nil)
	if err != nil {
		return Capabilities{}, err
	}

	caps := Capabilities{
		AccountID:        acct.ID,
		ChargesEnabled:   acct.ChargesEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
		PayoutsEnabled:   acct.PayoutsEnabled,
	}
	switch {
	case acct.Requirements != nil && acct.Requirements.DisabledReason != "":
		caps.Status = "restricted"
		caps.DisabledReason = string(acct.Requirements.DisabledReason)
	case acct.ChargesEnabled:
		caps.Status = "verified"
	default:
		caps.Status = "pending"
	}
	return caps, nil
}
