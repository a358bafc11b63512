package cache

import (
	"context"

	"github.com/csabourin/wampums-client/observe"
)

// Invalidator deletes the cache keys a mutation category can affect.
// Callers invoke the matching hook immediately after a successful
// mutation. Every hook is best-effort: failures are logged and never
// propagated, so a failed invalidation cannot mask the mutation it
// followed. The cost is temporary staleness, not data loss.
type Invalidator struct {
	store  Store
	keys   *KeyBuilder
	logger observe.Logger
}

// NewInvalidator creates an Invalidator over the given store. Keys are
// built through the same KeyBuilder as reads, so the deleted keys carry
// the same organization scope.
func NewInvalidator(store Store, keys *KeyBuilder, logger observe.Logger) (*Invalidator, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if keys == nil {
		keys = NewKeyBuilder(nil)
	}
	if logger == nil {
		logger = observe.NoopLogger()
	}
	return &Invalidator{
		store:  store,
		keys:   keys,
		logger: logger.WithScope("cache"),
	}, nil
}

// Endpoint groups affected by each mutation category.
var (
	participantEndpoints = []string{"participants_v2", "participants", "parent_dashboard"}
	membershipEndpoints  = []string{"groups", "participants_v2", "parent_dashboard"}
	financeEndpoints     = []string{"finance_report", "payments", "budget_summary"}
	badgeEndpoints       = []string{"badge_progress", "badge_summary", "pending_badges"}
	medicationEndpoints  = []string{"medication_records", "health_records", "health_contact_report"}
	attendanceEndpoints  = []string{"attendance", "attendance_dates", "parent_dashboard"}
	settingsEndpoints    = []string{"organization_settings", "form_types", "form_formats"}
)

// Participants invalidates caches affected by participant create/update/delete.
func (i *Invalidator) Participants(ctx context.Context) {
	i.invalidate(ctx, "participants", participantEndpoints)
}

// Membership invalidates caches affected by group membership changes.
func (i *Invalidator) Membership(ctx context.Context) {
	i.invalidate(ctx, "membership", membershipEndpoints)
}

// Finance invalidates caches affected by payment and budget mutations.
func (i *Invalidator) Finance(ctx context.Context) {
	i.invalidate(ctx, "finance", financeEndpoints)
}

// Badges invalidates caches affected by badge-progress mutations.
func (i *Invalidator) Badges(ctx context.Context) {
	i.invalidate(ctx, "badges", badgeEndpoints)
}

// Medication invalidates caches affected by medication and health-record
// mutations.
func (i *Invalidator) Medication(ctx context.Context) {
	i.invalidate(ctx, "medication", medicationEndpoints)
}

// Attendance invalidates caches affected by attendance mutations.
func (i *Invalidator) Attendance(ctx context.Context) {
	i.invalidate(ctx, "attendance", attendanceEndpoints)
}

// Settings invalidates caches affected by organization-settings mutations.
func (i *Invalidator) Settings(ctx context.Context) {
	i.invalidate(ctx, "settings", settingsEndpoints)
}

func (i *Invalidator) invalidate(ctx context.Context, domain string, endpoints []string) {
	keys := make([]string, len(endpoints))
	for n, ep := range endpoints {
		keys[n] = i.keys.Key(ctx, ep, nil)
	}

	if err := i.store.DeleteMany(ctx, keys); err != nil {
		i.logger.Warn(ctx, "cache invalidation failed",
			observe.Field{Key: "domain", Value: domain},
			observe.Field{Key: "error", Value: err.Error()})
	}
}
