package review

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func submission() Submission {
	return Submission{
		RequestID: "req-1",
		User:      "alice",
		Source:    "https://shop.example",
		Intent:    "proceed to checkout",
		RiskScore: 0.1,
		Flags:     []string{},
		Reason:    "override policy policy3 requires approval",
	}
}

func TestSubmitAndApprove(t *testing.T) {
	q := NewQueue()
	req := q.Submit(submission())

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Len(t, q.Pending(), 1)

	approved, err := q.Approve(req.ID, "ops@example.com")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, approved.Status)
	assert.Equal(t, "ops@example.com", approved.ReviewedBy)
	require.NotNil(t, approved.ReviewedAt)
	assert.Empty(t, q.Pending())

	_, err = q.Deny(req.ID, "ops@example.com", "too late")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestDeny(t *testing.T) {
	q := NewQueue()
	req := q.Submit(submission())

	denied, err := q.Deny(req.ID, "ops", "unexpected purchase")
	require.NoError(t, err)
	assert.Equal(t, StatusDenied, denied.Status)
	assert.Equal(t, "unexpected purchase", denied.Note)
}

func TestNotFound(t *testing.T) {
	q := NewQueue()
	_, err := q.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = q.Approve("missing", "ops")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueue(WithTimeout(time.Minute), withClock(clock.Now))
	req := q.Submit(submission())

	clock.Advance(2 * time.Minute)

	_, err := q.Approve(req.ID, "ops")
	assert.ErrorIs(t, err, ErrExpired)

	got, err := q.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, got.Status)
	assert.Empty(t, q.Pending())
}

func TestFinishedRequestsAreEvicted(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueue(WithTimeout(time.Minute), WithRetention(10*time.Minute), withClock(clock.Now))

	approved := q.Submit(submission())
	expired := q.Submit(submission())
	_, err := q.Approve(approved.ID, "ops")
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	assert.Empty(t, q.Pending())
	_, err = q.Get(approved.ID)
	require.NoError(t, err, "still inside the retention window")
	_, err = q.Get(expired.ID)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	fresh := q.Submit(submission())

	_, err = q.Get(approved.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = q.Get(expired.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, fresh.ID, pending[0].ID)
}

func TestPendingRequestsAreNotEvicted(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	q := NewQueue(WithTimeout(time.Hour), WithRetention(time.Minute), withClock(clock.Now))
	req := q.Submit(submission())

	clock.Advance(30 * time.Minute)

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)
}

func TestSnapshotsAreIndependent(t *testing.T) {
	q := NewQueue()
	req := q.Submit(Submission{Flags: []string{"signal:hidden_text"}})
	req.Flags[0] = "mutated"
	req.Status = StatusApproved

	got, err := q.Get(req.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"signal:hidden_text"}, got.Flags)
	assert.Equal(t, StatusPending, got.Status)
}

func TestWait(t *testing.T) {
	q := NewQueue()
	req := q.Submit(submission())

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = q.Deny(req.ID, "ops", "no")
	}()

	got, err := q.Wait(context.Background(), req.ID, 5*time.Millisecond)
	assert.ErrorIs(t, err, ErrDenied)
	assert.Equal(t, StatusDenied, got.Status)
}

func TestWait_Approved(t *testing.T) {
	q := NewQueue()
	req := q.Submit(submission())
	_, err := q.Approve(req.ID, "ops")
	require.NoError(t, err)

	got, err := q.Wait(context.Background(), req.ID, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestWait_ZeroIntervalUsesDefault(t *testing.T) {
	q := NewQueue()
	req := q.Submit(submission())
	_, err := q.Approve(req.ID, "ops")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		got, err := q.Wait(context.Background(), req.ID, 0)
		require.NoError(t, err)
		assert.Equal(t, StatusApproved, got.Status)
	})
}

func TestWait_ContextCancelled(t *testing.T) {
	q := NewQueue()
	req := q.Submit(submission())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	got, err := q.Wait(ctx, req.ID, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusPending, got.Status)
}

func TestConcurrentSubmit(t *testing.T) {
	q := NewQueue()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Submit(submission())
		}()
	}
	wg.Wait()
	assert.Len(t, q.Pending(), 50)
}
