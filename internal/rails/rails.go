package rails

import (
	"context"
	"errors"
	"time"
)

// ErrChargeSavedUnsupported is returned by rails whose renewals are owned by
// the platform instead of this system.
var ErrChargeSavedUnsupported = errors.New("rail does not support proactive charges")

// ChargeRequest describes a purchase attempt. IdempotencyKey makes a retried
// request safe: the same logical attempt never creates two charges.
type ChargeRequest struct {
	UserID         int64
	AmountMinor    int64
	Currency       string
	Description    string
	IdempotencyKey string
}

// Invoice is what the user needs to complete a purchase: a redirect URL for
// card-style rails, an invoice link for platform-currency rails.
type Invoice struct {
	ExternalID  string `json:"external_id,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	InvoiceLink string `json:"invoice_link,omitempty"`
}

// ChargeResult reports the outcome of a proactive saved-method charge.
type ChargeResult struct {
	ExternalID string
	Succeeded  bool
}

// Rail is the capability contract shared by both payment integrations. The
// two variants differ in renewal ownership: the saved-method rail is charged
// proactively by this system, the platform-currency rail is re-billed by the
// platform and only reflected here.
type Rail interface {
	Name() string
	CreateCharge(ctx context.Context, req ChargeRequest) (*Invoice, error)
	CreateRecurringCharge(ctx context.Context, req ChargeRequest) (*Invoice, error)
	ChargeSaved(ctx context.Context, userID int64, amountMinor int64, handle string, periodEnd time.Time) (*ChargeResult, error)
	CancelAutorenew(ctx context.Context, userID int64) error
}
