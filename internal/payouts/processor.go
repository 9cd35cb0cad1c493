package payouts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/example/marketplace-ops/internal/models"
	"github.com/example/marketplace-ops/internal/notify"
	"github.com/example/marketplace-ops/internal/observability"
	"github.com/example/marketplace-ops/internal/storage"
)

// Store is the slice of the entity store the processor needs.
type Store interface {
	ListPayableDrivers(ctx context.Context, minBalance float64) ([]models.Driver, error)
	SettleDriver(ctx context.Context, driverID string, minBalance float64, method string) (*models.Payout, error)
}

type Config struct {
	MinBalance    float64
	PaymentMethod string
	Currency      string
}

func DefaultConfig() Config {
	return Config{MinBalance: 100, PaymentMethod: "bank_transfer", Currency: "usd"}
}

// Result is the aggregate outcome of one batch run. Per-driver failures are
// enumerated; a single bad driver never aborts the batch.
type Result struct {
	Processed   int             `json:"processed"`
	TotalAmount float64         `json:"total_amount"`
	Payouts     []models.Payout `json:"payouts"`
	Partial     bool            `json:"partial"`
	Errors      []string        `json:"errors,omitempty"`
}

type Processor struct {
	store     Store
	gateway   notify.Gateway
	disburser Disburser
	cfg       Config
	logger    *slog.Logger
}

func NewProcessor(store Store, gateway notify.Gateway, disburser Disburser, cfg Config, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{store: store, gateway: gateway, disburser: disburser, cfg: cfg, logger: logger}
}

// Run settles every approved, dashboard-active driver at or above the
// minimum balance. Settlement is atomic per driver at the store boundary;
// disbursement and notification are best-effort afterwards.
func (p *Processor) Run(ctx context.Context) (*Result, error) {
	drivers, err := p.store.ListPayableDrivers(ctx, p.cfg.MinBalance)
	if err != nil {
		return nil, fmt.Errorf("list payable drivers: %w", err)
	}

	res := &Result{}
	for _, d := range drivers {
		if ctx.Err() != nil {
			res.Partial = true
			return res, nil
		}
		pay, err := p.store.SettleDriver(ctx, d.ID, p.cfg.MinBalance, p.cfg.PaymentMethod)
		if err != nil {
			if errors.Is(err, storage.ErrNothingToSettle) {
				// balance changed since selection; nothing owed anymore
				continue
			}
			res.Errors = append(res.Errors, fmt.Sprintf("settle %s: %v", d.ID, err))
			continue
		}
		res.Processed++
		res.TotalAmount += pay.Amount
		res.Payouts = append(res.Payouts, *pay)
		observability.PayoutsProcessed.Inc()
		observability.PayoutAmount.Add(pay.Amount)

		if p.disburser != nil && d.StripeAccountID != "" {
			if _, err := p.disburser.Transfer(ctx, pay.Amount, p.cfg.Currency, d.StripeAccountID); err != nil {
				p.logger.Warn("payout disbursement failed", "driver", d.ID, "error", err)
				res.Errors = append(res.Errors, fmt.Sprintf("disburse %s: %v", d.ID, err))
			}
		}
		p.notifyDriver(ctx, res, d, pay.Amount)
	}
	return res, nil
}

func (p *Processor) notifyDriver(ctx context.Context, res *Result, d models.Driver, amount float64) {
	if p.gateway == nil || d.Email == "" {
		return
	}
	subject := "Your payout is on the way"
	body := fmt.Sprintf("<p>Hi %s, we have processed your payout of %.2f.</p>", d.Name, amount)
	if err := p.gateway.SendEmail(ctx, d.Email, subject, body); err != nil {
		p.logger.Warn("payout notification failed", "driver", d.ID, "error", err)
		res.Errors = append(res.Errors, fmt.Sprintf("notify %s: %v", d.ID, err))
	}
}
