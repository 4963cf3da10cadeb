package helpers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLastUsed(t *testing.T) {
	now := time.Date(2024, 3, 20, 12, 0, 0, 0, time.Local)
	tests := []struct {
		ts   time.Time
		want string
	}{
		{time.Time{}, "never used"},
		{now.Add(-10 * time.Second), "last used just now"},
		{now.Add(time.Hour), "last used just now"},
		{now.Add(-time.Minute), "last used 1 minute ago"},
		{now.Add(-30 * time.Minute), "last used 30 minutes ago"},
		{now.Add(-100 * time.Minute), "last used 2 hours ago"},
		{now.Add(-30 * time.Hour), "last used 30 hours ago"},
		{now.Add(-72 * time.Hour), "last used 3 days ago"},
		{now.Add(-30 * 24 * time.Hour), "last used on 19 Feb 2024"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, lastUsed(tt.ts, now), "ts=%s", tt.ts)
	}
	assert.Equal(t, "never used", LastUsed(time.Time{}))
}
