package adminops

import (
	"context"
	"fmt"
	"time"

	"github.com/beautynano/beautynano-backend/internal/entitlements"
	pkgerrors "github.com/beautynano/beautynano-backend/pkg/errors"
	"github.com/beautynano/beautynano-backend/pkg/logger"
)

// Operation is one privileged override. The set is closed: every admin
// action is a typed variant dispatched through Apply, never a parsed string.
type Operation interface {
	operationName() string
}

// GrantDays extends a user's premium window by whole days.
type GrantDays struct {
	UserID int64
	Days   int
}

// Revoke clears a user's premium immediately.
type Revoke struct {
	UserID int64
}

// ResetFree zeroes a user's monthly free counter.
type ResetFree struct {
	UserID int64
}

// SetAutorenew toggles autorenew on the named rail.
type SetAutorenew struct {
	UserID  int64
	Rail    string
	Enabled bool
}

func (GrantDays) operationName() string    { return "grant_days" }
func (Revoke) operationName() string       { return "revoke" }
func (ResetFree) operationName() string    { return "reset_free" }
func (SetAutorenew) operationName() string { return "set_autorenew" }

type entitlementStore interface {
	GetOrCreate(ctx context.Context, userID int64) entitlements.Record
	Grant(ctx context.Context, userID int64, duration time.Duration, source string) time.Time
	Revoke(ctx context.Context, userID int64)
	ResetFree(ctx context.Context, userID int64)
}

type savedMethodRail interface {
	CancelAutorenew(ctx context.Context, userID int64) error
}

type platformRail interface {
	CancelAutorenew(ctx context.Context, userID int64) error
	ResumeAutorenew(ctx context.Context, userID int64) error
}

// ServiceParams groups dependencies for the admin override surface.
type ServiceParams struct {
	Store        entitlementStore
	SavedRail    savedMethodRail
	PlatformRail platformRail
	Logger       *logger.Logger
}

// Service applies operator overrides onto the entitlement store and rails.
type Service struct {
	store        entitlementStore
	savedRail    savedMethodRail
	platformRail platformRail
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entitlement store required")
	}
	if params.SavedRail == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "saved-method rail required")
	}
	if params.PlatformRail == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "platform rail required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		store:        params.Store,
		savedRail:    params.SavedRail,
		platformRail: params.PlatformRail,
		logg:         params.Logger,
	}, nil
}

// Inspect returns the raw record for operator tooling.
func (s *Service) Inspect(ctx context.Context, userID int64) entitlements.Record {
	return s.store.GetOrCreate(ctx, userID)
}

// Apply executes one override and returns the user's record afterwards.
func (s *Service) Apply(ctx context.Context, op Operation) (entitlements.Record, error) {
	var userID int64

	switch v := op.(type) {
	case GrantDays:
		if v.Days <= 0 {
			return entitlements.Record{}, pkgerrors.New(pkgerrors.CodeValidation, "days must be positive")
		}
		userID = v.UserID
		s.store.Grant(ctx, v.UserID, time.Duration(v.Days)*24*time.Hour, "admin")
	case Revoke:
		userID = v.UserID
		s.store.Revoke(ctx, v.UserID)
	case ResetFree:
		userID = v.UserID
		s.store.ResetFree(ctx, v.UserID)
	case SetAutorenew:
		userID = v.UserID
		if err := s.setAutorenew(ctx, v); err != nil {
			return entitlements.Record{}, err
		}
	default:
		return entitlements.Record{}, pkgerrors.New(pkgerrors.CodeValidation, "unknown admin operation")
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, userID), map[string]any{
		"operation": op.operationName(),
	}), "adminops.applied")
	return s.store.GetOrCreate(ctx, userID), nil
}

func (s *Service) setAutorenew(ctx context.Context, op SetAutorenew) error {
	switch op.Rail {
	case "yookassa":
		if op.Enabled {
			// Re-enabling requires a fresh purchase that saves a method.
			rec := s.store.GetOrCreate(ctx, op.UserID)
			if rec.SavedMethodHandle == "" {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "no saved payment method on file")
			}
			return nil
		}
		return s.savedRail.CancelAutorenew(ctx, op.UserID)
	case "stars":
		if op.Enabled {
			return s.platformRail.ResumeAutorenew(ctx, op.UserID)
		}
		return s.platformRail.CancelAutorenew(ctx, op.UserID)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown rail %q", op.Rail))
	}
}
