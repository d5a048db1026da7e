package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeAgo(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{45 * time.Minute, "45 minutes ago"},
		{3 * time.Hour, "3 hours ago"},
		{30 * time.Hour, "yesterday"},
		{4 * 24 * time.Hour, "4 days ago"},
		{8 * 24 * time.Hour, "1 week ago"},
		{15 * 24 * time.Hour, "2 weeks ago"},
		{60 * 24 * time.Hour, "2026-01-19"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeAgo(now.Add(-tt.ago), now), tt.ago.String())
	}
}

func TestFormatTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC) // Friday

	assert.Equal(t, "09:30", FormatTimestamp(time.Date(2026, 3, 20, 9, 30, 0, 0, time.UTC), now))
	assert.Equal(t, "Wed 18:05", FormatTimestamp(time.Date(2026, 3, 18, 18, 5, 0, 0, time.UTC), now))
	assert.Equal(t, "2026-02-01 08:00", FormatTimestamp(time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC), now))
}
