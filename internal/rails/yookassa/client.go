package yookassa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/beautynano/beautynano-backend/internal/rails"
	"github.com/beautynano/beautynano-backend/pkg/config"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

const railName = "yookassa"

type savedMethodStore interface {
	DetachSavedMethod(ctx context.Context, userID int64)
}

// Rail is the saved-method payment rail backed by the YooKassa payments API.
// Renewals are pulled proactively by this system via ChargeSaved.
type Rail struct {
	httpClient *http.Client
	baseURL    string
	shopID     string
	secretKey  string
	returnURL  string
	store      savedMethodStore
	logg       *logger.Logger
}

// Params groups dependencies for the YooKassa rail.
type Params struct {
	Config     config.YooKassaConfig
	Store      savedMethodStore
	Logger     *logger.Logger
	HTTPClient *http.Client
}

// New builds the YooKassa rail from configuration.
func New(params Params) (*Rail, error) {
	if strings.TrimSpace(params.Config.ShopID) == "" {
		return nil, errors.New("yookassa shop id is required")
	}
	if strings.TrimSpace(params.Config.SecretKey) == "" {
		return nil, errors.New("yookassa secret key is required")
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
		httpClient: httpClient,
		baseURL:    strings.TrimRight(params.Config.BaseURL, "/"),
		shopID:     params.Config.ShopID,
		secretKey:  params.Config.SecretKey,
		returnURL:  params.Config.ReturnURL,
		store:      params.Store,
		logg:       params.Logger,
	}, nil
}

func (r *Rail) Name() string {
	return railName
}

// CreateCharge opens a one-off payment and returns the confirmation redirect.
func (r *Rail) CreateCharge(ctx context.Context, req rails.ChargeRequest) (*rails.Invoice, error) {
	return r.createRedirectPayment(ctx, req, false)
}

// CreateRecurringCharge opens a payment that also saves the payment method so
// future renewals can be charged without the user present.
func (r *Rail) CreateRecurringCharge(ctx context.Context, req rails.ChargeRequest) (*rails.Invoice, error) {
	return r.createRedirectPayment(ctx, req, true)
}

func (r *Rail) createRedirectPayment(ctx context.Context, req rails.ChargeRequest, saveMethod bool) (*rails.Invoice, error) {
	if req.IdempotencyKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	payload := paymentRequest{
		Amount:  amount{Value: minorToValue(req.AmountMinor), Currency: req.Currency},
		Capture: true,
		Confirmation: &confirmation{
			Type:      "redirect",
			ReturnURL: r.returnURL,
		},
		SavePaymentMethod: saveMethod,
		Description:       req.Description,
		Metadata:          map[string]string{"user_id": strconv.FormatInt(req.UserID, 10)},
	}
	resp, err := r.createPayment(ctx, req.IdempotencyKey, payload)
	if err != nil {
		return nil, err
	}
	invoice := &rails.Invoice{ExternalID: resp.ID}
	if resp.Confirmation != nil {
		invoice.RedirectURL = resp.Confirmation.ConfirmationURL
	}
	return invoice, nil
}

// ChargeSaved pulls funds from a stored payment method. A failed or pending
// charge is reported as not succeeded; the caller retries on its own cadence.
// periodEnd scopes the idempotence key to the expiring cycle.
func (r *Rail) ChargeSaved(ctx context.Context, userID int64, amountMinor int64, handle string, periodEnd time.Time) (*rails.ChargeResult, error) {
	if handle == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method handle is required")
	}
	payload := paymentRequest{
		Amount:          amount{Value: minorToValue(amountMinor), Currency: "RUB"},
		Capture:         true,
		PaymentMethodID: handle,
		Description:     "subscription renewal",
		Metadata:        map[string]string{"user_id": strconv.FormatInt(userID, 10)},
	}
	resp, err := r.createPayment(ctx, renewalIdempotencyKey(userID, handle, periodEnd), payload)
	if err != nil {
		return nil, err
	}
	return &rails.ChargeResult{
		ExternalID: resp.ID,
		Succeeded:  resp.Status == "succeeded",
	}, nil
}

// CancelAutorenew detaches the stored method so future sweeps skip the user.
func (r *Rail) CancelAutorenew(ctx context.Context, userID int64) error {
	r.store.DetachSavedMethod(ctx, userID)
	return nil
}

type amount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type confirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type paymentRequest struct {
	Amount            amount            `json:"amount"`
	Capture           bool              `json:"capture"`
	Description       string            `json:"description,omitempty"`
	Confirmation      *confirmation     `json:"confirmation,omitempty"`
	SavePaymentMethod bool              `json:"save_payment_method,omitempty"`
	PaymentMethodID   string            `json:"payment_method_id,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

type paymentResponse struct {
	ID           string        `json:"id"`
	Status       string        `json:"status"`
	Confirmation *confirmation `json:"confirmation,omitempty"`
}

func (r *Rail) createPayment(ctx context.Context, idempotencyKey string, payload paymentRequest) (*paymentResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payment request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build payment request")
	}
	req.SetBasicAuth(r.shopID, r.secretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotence-Key", idempotencyKey)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "yookassa request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read yookassa response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("yookassa returned status %d", resp.StatusCode)).
			WithDetails(map[string]any{"body": string(raw)})
	}

	var parsed paymentResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode yookassa response")
	}
	return &parsed, nil
}

// minorToValue renders kopeks as the decimal string the API expects.
func minorToValue(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

// renewalIdempotencyKey keys a renewal attempt by user, handle and the
// expiring cycle. Retries within a cycle cannot double-charge, while the
// next cycle always produces a fresh key.
func renewalIdempotencyKey(userID int64, handle string, periodEnd time.Time) string {
	return fmt.Sprintf("renewal-%d-%s-%s", userID, handle, periodEnd.UTC().Format("20060102T150405"))
}
