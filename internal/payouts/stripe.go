package payouts

import (
	"context"
	"math"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/transfer"
)

// Disburser moves a settled amount to the driver's connected account.
type Disburser interface {
	Transfer(ctx context.Context, amount float64, currency, accountID string) (string, error)
}

// StripeClient is a thin wrapper around stripe-go transfers.
type StripeClient struct {
	Currency string
}

// NewStripeClient configures the stripe client with the given API key.
func NewStripeClient(apiKey, currency string) *StripeClient {
	stripe.Key = apiKey
	if currency == "" {
		currency = "usd"
	}
	return &StripeClient{Currency: currency}
}

// Transfer sends the amount (in major currency units) to the connected
// account and returns the transfer ID.
func (s *StripeClient) Transfer(ctx context.Context, amount float64, currency, accountID string) (string, error) {
	if currency == "" {
		currency = s.Currency
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(toMinorUnits(amount)),
		Currency:    stripe.String(currency),
		Destination: stripe.String(accountID),
	}
	tr, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Floor(amount*100 + 0.5))
}
