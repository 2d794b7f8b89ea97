package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time              { return c.now }
func (c *fakeClock) Advance(d time.Duration)     { c.now = c.now.Add(d) }
func newFakeClock() *fakeClock                   { return &fakeClock{now: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)} }
func newTestLimiter(clk *fakeClock) *Limiter     { return New(5*time.Minute, WithClock(clk.Now)) }

func TestFreshKeyNotLimited(t *testing.T) {
	l := newTestLimiter(newFakeClock())

	assert.False(t, l.IsLimited("db down"))
	// Checking must not consume the token.
	assert.False(t, l.IsLimited("db down"))
}

func TestLimitedAfterRecordSend(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	l.RecordSend("db down")
	assert.True(t, l.IsLimited("db down"))

	clk.Advance(4 * time.Minute)
	assert.True(t, l.IsLimited("db down"))

	clk.Advance(time.Minute)
	assert.False(t, l.IsLimited("db down"))
}

func TestKeysAreIndependent(t *testing.T) {
	l := newTestLimiter(newFakeClock())

	l.RecordSend("slack_db down")
	assert.True(t, l.IsLimited("slack_db down"))
	assert.False(t, l.IsLimited("email_db down"))
}

func TestSentCountAcrossWindows(t *testing.T) {
	clk := newFakeClock()
	l := newTestLimiter(clk)

	l.RecordSend("api 500")
	assert.True(t, l.IsLimited("api 500"))

	clk.Advance(5 * time.Minute)
	assert.False(t, l.IsLimited("api 500"))
	l.RecordSend("api 500")
	assert.Equal(t, 2, l.SentCount("api 500"))
}

func TestStatusGroupsByPrefix(t *testing.T) {
	l := newTestLimiter(newFakeClock())

	l.RecordSend("slack_a")
	l.RecordSend("slack_b")
	l.RecordSend("email_a")
	l.RecordSend("plain")

	st := l.Status()
	assert.Equal(t, 4, st.TotalKeys)
	assert.Equal(t, 2, st.ByPrefix["slack"])
	assert.Equal(t, 1, st.ByPrefix["email"])
	assert.Equal(t, 1, st.ByPrefix["other"])
}
