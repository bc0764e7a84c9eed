package stars

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/beautynano/beautynano-backend/internal/entitlements"
	"github.com/beautynano/beautynano-backend/internal/rails"
	"github.com/beautynano/beautynano-backend/pkg/config"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

const (
	railName = "stars"

	// Telegram only accepts 30 days for Stars subscriptions.
	subscriptionPeriodSeconds = 2592000
)

type platformStore interface {
	GetOrCreate(ctx context.Context, userID int64) entitlements.Record
	SetAutorenewSuspended(ctx context.Context, userID int64, suspended bool)
}

// Rail is the platform-currency rail backed by the Telegram Bot API. The
// platform re-bills the subscription itself; this system only issues invoice
// links and reflects the suspend/resume toggle.
type Rail struct {
	httpClient  *http.Client
	baseURL     string
	botToken    string
	title       string
	description string
	payload     string
	store       platformStore
	logg        *logger.Logger
}

// Params groups dependencies for the Stars rail.
type Params struct {
	Config     config.StarsConfig
	Store      platformStore
	Logger     *logger.Logger
	HTTPClient *http.Client
}

// New builds the Stars rail from configuration.
func New(params Params) (*Rail, error) {
	if strings.TrimSpace(params.Config.BotToken) == "" {
		return nil, errors.New("bot token is required")
	}
	if params.Store == nil {
		return nil, errors.New("entitlement store is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	httpClient := params.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: params.Config.Timeout}
	}
	return &Rail{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(params.Config.BaseURL, "/"),
		botToken:    params.Config.BotToken,
		title:       params.Config.Title,
		description: params.Config.Description,
		payload:     params.Config.Payload,
		store:       params.Store,
		logg:        params.Logger,
	}, nil
}

func (r *Rail) Name() string {
	return railName
}

// CreateCharge issues a one-off XTR invoice link.
func (r *Rail) CreateCharge(ctx context.Context, req rails.ChargeRequest) (*rails.Invoice, error) {
	return r.createInvoiceLink(ctx, req, false)
}

// CreateRecurringCharge issues a subscription invoice link. The platform
// itself re-bills every period; nothing is charged proactively from here.
func (r *Rail) CreateRecurringCharge(ctx context.Context, req rails.ChargeRequest) (*rails.Invoice, error) {
	return r.createInvoiceLink(ctx, req, true)
}

// ChargeSaved is not available on this rail: renewal ownership sits with the
// platform.
func (r *Rail) ChargeSaved(ctx context.Context, userID int64, amountMinor int64, handle string, periodEnd time.Time) (*rails.ChargeResult, error) {
	return nil, rails.ErrChargeSavedUnsupported
}

// CancelAutorenew tells the platform to stop re-billing and marks the pause
// locally. The subscription reference survives so it can be resumed later
// without a new purchase.
func (r *Rail) CancelAutorenew(ctx context.Context, userID int64) error {
	return r.setAutorenew(ctx, userID, false)
}

// ResumeAutorenew re-enables platform re-billing for a paused subscription.
func (r *Rail) ResumeAutorenew(ctx context.Context, userID int64) error {
	return r.setAutorenew(ctx, userID, true)
}

func (r *Rail) setAutorenew(ctx context.Context, userID int64, enabled bool) error {
	rec := r.store.GetOrCreate(ctx, userID)
	if rec.PlatformSubscriptionRef == "" {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "no platform subscription on file")
	}

	payload := map[string]any{
		"user_id":                    userID,
		"telegram_payment_charge_id": rec.PlatformSubscriptionRef,
		"is_canceled":                !enabled,
	}
	if err := r.call(ctx, "editUserStarSubscription", payload, nil); err != nil {
		return err
	}

	r.store.SetAutorenewSuspended(ctx, userID, !enabled)
	return nil
}

func (r *Rail) createInvoiceLink(ctx context.Context, req rails.ChargeRequest, recurring bool) (*rails.Invoice, error) {
	payload := map[string]any{
		"title":       r.title,
		"description": r.description,
		"payload":     r.payload,
		"currency":    "XTR",
		"prices": []map[string]any{
			{"label": r.title, "amount": req.AmountMinor},
		},
	}
	if recurring {
		payload["subscription_period"] = subscriptionPeriodSeconds
	}

	var link string
	if err := r.call(ctx, "createInvoiceLink", payload, &link); err != nil {
		return nil, err
	}
	return &rails.Invoice{InvoiceLink: link}, nil
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	Description string          `json:"description"`
}

func (r *Rail) call(ctx context.Context, method string, payload map[string]any, result any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode bot api request")
	}

	url := fmt.Sprintf("%s/bot%s/%s", r.baseURL, r.botToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build bot api request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "bot api request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read bot api response")
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode bot api response")
	}
	if !parsed.OK {
		return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("bot api %s failed", method)).
			WithDetails(map[string]any{"description": parsed.Description})
	}
	if result != nil {
		if err := json.Unmarshal(parsed.Result, result); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode bot api result")
		}
	}
	return nil
}
