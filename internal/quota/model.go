package quota

import (
	"time"

	"github.com/google/uuid"

	"github.com/mailmind/mailmind/internal/config"
	"github.com/mailmind/mailmind/internal/users"
)

// PlanTier is the subscription level stored on the user row.
type PlanTier = users.PlanTier

const (
	PlanFree    = users.PlanFree
	PlanPremium = users.PlanPremium
)

// Plan is the quota policy for a single tier.
type Plan struct {
	Tier       PlanTier
	DailyLimit int
	// ClampRemaining reports a floor of zero instead of a negative remainder
	// once the counter has gone past DailyLimit.
	ClampRemaining bool
}

// Remaining computes what is left of the daily allowance after used prompts.
func (p Plan) Remaining(used int) int {
	r := p.DailyLimit - used
	if p.ClampRemaining && r < 0 {
		return 0
	}
	return r
}

// Policy maps tiers to their plans. Unknown tiers get the FREE plan.
type Policy struct {
	plans map[PlanTier]Plan
}

// DefaultPolicy is FREE=15 clamped and PREMIUM=45 unclamped.
func DefaultPolicy() Policy {
	return NewPolicy(config.QuotaConfig{FreeDailyLimit: 15, PremiumDailyLimit: 45})
}

func NewPolicy(cfg config.QuotaConfig) Policy {
	return Policy{plans: map[PlanTier]Plan{
		PlanFree:    {Tier: PlanFree, DailyLimit: cfg.FreeDailyLimit, ClampRemaining: true},
		PlanPremium: {Tier: PlanPremium, DailyLimit: cfg.PremiumDailyLimit, ClampRemaining: cfg.PremiumClamp},
	}}
}

func (p Policy) Plan(tier PlanTier) Plan {
	if plan, ok := p.plans[tier]; ok {
		return plan
	}
	return p.plans[PlanFree]
}

// DayKey identifies a calendar day as yyyymmdd.
type DayKey int

// DayOf returns the calendar day t falls on in loc.
func DayOf(t time.Time, loc *time.Location) DayKey {
	y, m, d := t.In(loc).Date()
	return DayKey(y*10000 + int(m)*100 + d)
}

// UserQuota is a user's plan joined with their user_quotas row.
// LastResetAt is nil when the user has never consumed a prompt.
type UserQuota struct {
	UserID           uuid.UUID
	PlanTier         PlanTier
	PromptsUsedToday int
	LastResetAt      *time.Time
	ResetDay         DayKey
}

// UsedOn returns the effective counter for day. A row last reset on
// another day counts as zero.
func (q *UserQuota) UsedOn(day DayKey) int {
	if q.LastResetAt == nil || q.ResetDay != day {
		return 0
	}
	return q.PromptsUsedToday
}

// Status is the wire body of both prompt endpoints.
type Status struct {
	Remaining  int      `json:"promptsRemaining"`
	PlanTier   PlanTier `json:"plan"`
	DailyLimit int      `json:"dailyLimit"`
	Used       int      `json:"-"`
}

func newStatus(plan Plan, used int) Status {
	return Status{
		Remaining:  plan.Remaining(used),
		PlanTier:   plan.Tier,
		DailyLimit: plan.DailyLimit,
		Used:       used,
	}
}
