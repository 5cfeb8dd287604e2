package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spokeshare/service-booking/internal/domain"
)

func TestAcceptanceHours(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		want  time.Duration
	}{
		{"under 24 hours", now.Add(10 * time.Hour), 2 * time.Hour},
		{"just under 24 hours", now.Add(24*time.Hour - time.Second), 2 * time.Hour},
		{"exactly 24 hours", now.Add(24 * time.Hour), 4 * time.Hour},
		{"48 hours", now.Add(48 * time.Hour), 4 * time.Hour},
		{"exactly 72 hours", now.Add(72 * time.Hour), 4 * time.Hour},
		{"just over 72 hours", now.Add(72*time.Hour + time.Second), 8 * time.Hour},
		{"a week out", now.Add(7 * 24 * time.Hour), 8 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AcceptanceHours(tt.start, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("zero timestamps are rejected", func(t *testing.T) {
		_, err := AcceptanceHours(time.Time{}, now)
		assert.True(t, domain.IsKind(err, domain.KindValidation))

		_, err = AcceptanceHours(now, time.Time{})
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	})
}

func TestAcceptanceDeadline(t *testing.T) {
	createdAt := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	t.Run("deadline is creation time plus acceptance hours", func(t *testing.T) {
		// 10 hours to start: 2-hour acceptance window.
		deadline, err := AcceptanceDeadline(createdAt, createdAt.Add(10*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, createdAt.Add(2*time.Hour), deadline)
	})

	t.Run("zero creation time is rejected", func(t *testing.T) {
		_, err := AcceptanceDeadline(time.Time{}, createdAt)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	})
}

func TestCheckInWindow(t *testing.T) {
	start := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	open, close, err := CheckInWindow(start)
	require.NoError(t, err)
	assert.Equal(t, start.Add(-15*time.Minute), open)
	assert.Equal(t, start.Add(60*time.Minute), close)

	_, _, err = CheckInWindow(time.Time{})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestCompletionAllowedAt(t *testing.T) {
	start := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	allowedAt, err := CompletionAllowedAt(start)
	require.NoError(t, err)
	assert.Equal(t, start.Add(20*time.Minute), allowedAt)

	_, err = CompletionAllowedAt(time.Time{})
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestRefusalDeadline(t *testing.T) {
	start := time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC)

	deadline, err := RefusalDeadline(start)
	require.NoError(t, err)
	assert.Equal(t, start.Add(10*time.Minute), deadline)
}

func TestIsEarlyCancellation(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		start time.Time
		want  bool
	}{
		{"seven days out is early", now.Add(7 * 24 * time.Hour), true},
		{"just over five days is early", now.Add(5*24*time.Hour + time.Second), true},
		{"exactly five days is late", now.Add(5 * 24 * time.Hour), false},
		{"two days out is late", now.Add(2 * 24 * time.Hour), false},
		{"in the past is late", now.Add(-time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsEarlyCancellation(tt.start, now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
