package quota

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmind/mailmind/internal/config"
	"github.com/mailmind/mailmind/internal/metrics"
	inats "github.com/mailmind/mailmind/internal/nats"
)

// memStore mirrors the conditional upsert of Repository in memory.
type memStore struct {
	mu     sync.Mutex
	tiers  map[uuid.UUID]PlanTier
	rows   map[uuid.UUID]*UserQuota
	err    error
	writes int
}

func newMemStore() *memStore {
	return &memStore{tiers: map[uuid.UUID]PlanTier{}, rows: map[uuid.UUID]*UserQuota{}}
}

func (s *memStore) addUser(tier PlanTier) uuid.UUID {
	id := uuid.New()
	s.tiers[id] = tier
	return id
}

func (s *memStore) seed(id uuid.UUID, used int, resetAt time.Time, loc *time.Location) {
	at := resetAt
	s.rows[id] = &UserQuota{UserID: id, PromptsUsedToday: used, LastResetAt: &at, ResetDay: DayOf(at, loc)}
}

func (s *memStore) Get(_ context.Context, id uuid.UUID) (*UserQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	tier, ok := s.tiers[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	q := &UserQuota{UserID: id, PlanTier: tier}
	if row, ok := s.rows[id]; ok {
		q.PromptsUsedToday = row.PromptsUsedToday
		q.LastResetAt = row.LastResetAt
		q.ResetDay = row.ResetDay
	}
	return q, nil
}

func (s *memStore) Consume(_ context.Context, id uuid.UUID, day DayKey, now time.Time) (*UserQuota, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	tier, ok := s.tiers[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	row, ok := s.rows[id]
	switch {
	case !ok:
		at := now
		row = &UserQuota{UserID: id, PromptsUsedToday: 1, LastResetAt: &at, ResetDay: day}
		s.rows[id] = row
	case row.ResetDay == day:
		row.PromptsUsedToday++
	default:
		at := now
		row.PromptsUsedToday = 1
		row.LastResetAt = &at
		row.ResetDay = day
	}
	s.writes++

	out := *row
	out.PlanTier = tier
	return &out, nil
}

type recordingEvents struct {
	events []inats.QuotaConsumedEvent
	err    error
}

func (r *recordingEvents) PublishQuotaConsumed(_ context.Context, e inats.QuotaConsumedEvent) error {
	r.events = append(r.events, e)
	return r.err
}

var (
	utc   = time.UTC
	today = time.Date(2026, 10, 16, 14, 30, 0, 0, utc)
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newTestLedger(store Store, opts ...Option) *Ledger {
	opts = append([]Option{WithClock(fixedClock(today))}, opts...)
	return NewLedger(store, DefaultPolicy(), utc, opts...)
}

func TestLedger_Consume_FreeReachesZero(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	store.seed(id, 14, today.Add(-2*time.Hour), utc)
	ledger := newTestLedger(store)

	status, err := ledger.Consume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Remaining)
	assert.Equal(t, 15, store.rows[id].PromptsUsedToday)
}

func TestLedger_Consume_NewDayResetsToOne(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	yesterday := today.AddDate(0, 0, -1)
	store.seed(id, 5, yesterday, utc)
	ledger := newTestLedger(store)

	status, err := ledger.Consume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 14, status.Remaining)

	row := store.rows[id]
	assert.Equal(t, 1, row.PromptsUsedToday)
	require.NotNil(t, row.LastResetAt)
	assert.True(t, row.LastResetAt.Equal(today))
	assert.Equal(t, DayOf(today, utc), row.ResetDay)
}

func TestLedger_Consume_PremiumReachesZero(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanPremium)
	store.seed(id, 44, today.Add(-time.Hour), utc)
	ledger := newTestLedger(store)

	status, err := ledger.Consume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Remaining)
	assert.Equal(t, PlanPremium, status.PlanTier)
	assert.Equal(t, 45, status.DailyLimit)
	assert.Equal(t, 45, store.rows[id].PromptsUsedToday)
}

func TestLedger_Consume_FreeStaysClampedPastLimit(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	ledger := newTestLedger(store)
	ctx := context.Background()

	var status Status
	var err error
	for i := 0; i < 15; i++ {
		status, err = ledger.Consume(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, status.Remaining)

	status, err = ledger.Consume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Remaining)
	assert.Equal(t, 16, store.rows[id].PromptsUsedToday, "counter keeps growing past the limit")
}

func TestLedger_Consume_OverLimitMetricCountsOnlyExcess(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	store.seed(id, 14, today.Add(-time.Hour), utc)
	ledger := newTestLedger(store)
	ctx := context.Background()
	over := metrics.PromptsOverLimitTotal.WithLabelValues(string(PlanFree))
	before := testutil.ToFloat64(over)

	_, err := ledger.Consume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, testutil.ToFloat64(over), "spending the last prompt is within the limit")

	_, err = ledger.Consume(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before+1, testutil.ToFloat64(over))
}

func TestLedger_Consume_PremiumUnclampedByDefault(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanPremium)
	store.seed(id, 45, today.Add(-time.Hour), utc)
	ledger := newTestLedger(store)

	status, err := ledger.Consume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, -1, status.Remaining)
}

func TestLedger_Consume_PremiumClampWhenConfigured(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanPremium)
	store.seed(id, 45, today.Add(-time.Hour), utc)
	policy := NewPolicy(config.QuotaConfig{FreeDailyLimit: 15, PremiumDailyLimit: 45, PremiumClamp: true})
	ledger := NewLedger(store, policy, utc, WithClock(fixedClock(today)))

	status, err := ledger.Consume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Remaining)
}

func TestLedger_Consume_SameDayKeepsLastReset(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	morning := time.Date(2026, 10, 16, 8, 0, 0, 0, utc)
	store.seed(id, 2, morning, utc)
	ledger := newTestLedger(store)

	_, err := ledger.Consume(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, store.rows[id].LastResetAt.Equal(morning))
	assert.Equal(t, 3, store.rows[id].PromptsUsedToday)
}

func TestLedger_Consume_MonthAndYearRollover(t *testing.T) {
	cases := []struct {
		name string
		last time.Time
		now  time.Time
	}{
		{"same day-of-month, previous month", time.Date(2026, 9, 16, 12, 0, 0, 0, utc), time.Date(2026, 10, 16, 12, 0, 0, 0, utc)},
		{"same month and day, previous year", time.Date(2025, 10, 16, 12, 0, 0, 0, utc), time.Date(2026, 10, 16, 12, 0, 0, 0, utc)},
		{"new year's eve to new year's day", time.Date(2025, 12, 31, 23, 59, 0, 0, utc), time.Date(2026, 1, 1, 0, 1, 0, 0, utc)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			id := store.addUser(PlanFree)
			store.seed(id, 9, tc.last, utc)
			ledger := NewLedger(store, DefaultPolicy(), utc, WithClock(fixedClock(tc.now)))

			peek, err := ledger.Peek(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, 15, peek.Remaining)

			status, err := ledger.Consume(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, 14, status.Remaining)
			assert.Equal(t, 1, store.rows[id].PromptsUsedToday)
		})
	}
}

func TestLedger_Peek_IsReadOnlyAndIdempotent(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	store.seed(id, 4, today.Add(-time.Hour), utc)
	ledger := newTestLedger(store)
	ctx := context.Background()

	first, err := ledger.Peek(ctx, id)
	require.NoError(t, err)
	second, err := ledger.Peek(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, 11, first.Remaining)
	assert.Equal(t, first, second)
	assert.Equal(t, 0, store.writes)
}

func TestLedger_Peek_StaleDayIsFreshWithoutWriting(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanPremium)
	store.seed(id, 40, today.AddDate(0, 0, -1), utc)
	ledger := newTestLedger(store)

	status, err := ledger.Peek(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 45, status.Remaining)
	assert.Equal(t, 40, store.rows[id].PromptsUsedToday, "peek must not persist the reset")
}

func TestLedger_Peek_NoRowYet(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	ledger := newTestLedger(store)

	status, err := ledger.Peek(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, Status{Remaining: 15, PlanTier: PlanFree, DailyLimit: 15}, status)
}

func TestLedger_Peek_MatchesLastConsume(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	store.seed(id, 7, today.Add(-time.Hour), utc)
	ledger := newTestLedger(store)
	ctx := context.Background()

	consumed, err := ledger.Consume(ctx, id)
	require.NoError(t, err)
	peeked, err := ledger.Peek(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, consumed.Remaining, peeked.Remaining)
}

func TestLedger_DayBoundaryUsesConfiguredLocation(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	store := newMemStore()
	id := store.addUser(PlanFree)

	// 20:00 UTC on the 15th is already the 16th in Tokyo.
	last := time.Date(2026, 10, 15, 10, 0, 0, 0, utc)
	now := time.Date(2026, 10, 15, 20, 0, 0, 0, utc)
	store.seed(id, 6, last, tokyo)

	ledger := NewLedger(store, DefaultPolicy(), tokyo, WithClock(fixedClock(now)))
	status, err := ledger.Peek(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 15, status.Remaining)

	utcLedger := NewLedger(store, DefaultPolicy(), utc, WithClock(fixedClock(now)))
	store.seed(id, 6, last, utc)
	status, err = utcLedger.Peek(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 9, status.Remaining)
}

func TestLedger_UnknownUser(t *testing.T) {
	ledger := newTestLedger(newMemStore())

	_, err := ledger.Peek(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = ledger.Consume(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestLedger_StorageFailure(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	boom := errors.New("connection reset")
	store.err = boom
	ledger := newTestLedger(store)

	_, err := ledger.Consume(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, boom)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "consume", se.Op)
}

func TestLedger_ConcurrentConsumesAllCount(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	store.seed(id, 3, today.AddDate(0, 0, -1), utc)
	ledger := newTestLedger(store)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.Consume(context.Background(), id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, store.rows[id].PromptsUsedToday, "one reset plus nineteen increments")
}

func TestLedger_PublishesConsumeEvents(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	events := &recordingEvents{}
	ledger := newTestLedger(store, WithEvents(events))

	_, err := ledger.Consume(context.Background(), id)
	require.NoError(t, err)

	require.Len(t, events.events, 1)
	e := events.events[0]
	assert.Equal(t, id, e.UserID)
	assert.Equal(t, "FREE", e.Plan)
	assert.Equal(t, 1, e.PromptsUsedToday)
	assert.Equal(t, 14, e.PromptsRemaining)
	assert.True(t, e.DayReset)
}

func TestLedger_PublishFailureDoesNotFailConsume(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	ledger := newTestLedger(store, WithEvents(&recordingEvents{err: errors.New("nats down")}))

	status, err := ledger.Consume(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 14, status.Remaining)
}

func TestLedger_Allow(t *testing.T) {
	store := newMemStore()
	id := store.addUser(PlanFree)
	store.seed(id, 14, today.Add(-time.Hour), utc)
	ledger := newTestLedger(store)
	ctx := context.Background()

	require.NoError(t, ledger.Allow(ctx, id))

	_, err := ledger.Consume(ctx, id)
	require.NoError(t, err)
	assert.ErrorIs(t, ledger.Allow(ctx, id), ErrLimitReached)
}

func TestPolicy_UnknownTierFallsBackToFree(t *testing.T) {
	plan := DefaultPolicy().Plan(PlanTier("ENTERPRISE"))
	assert.Equal(t, PlanFree, plan.Tier)
	assert.Equal(t, 15, plan.DailyLimit)
}

func TestDayOf(t *testing.T) {
	assert.Equal(t, DayKey(20261016), DayOf(today, utc))
	assert.Equal(t, DayKey(20260101), DayOf(time.Date(2026, 1, 1, 0, 0, 0, 0, utc), utc))
	assert.NotEqual(t,
		DayOf(time.Date(2026, 1, 31, 12, 0, 0, 0, utc), utc),
		DayOf(time.Date(2026, 2, 1, 12, 0, 0, 0, utc), utc))
}
