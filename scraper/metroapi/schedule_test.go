package metroapi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestInService(t *testing.T) {
	hours := DefaultServiceHours(santiago)
	at := func(day, hour, min, sec int) time.Time {
		// June 2025: the 16th is a Monday, the 21st a Saturday, the 22nd a Sunday
		return time.Date(2025, time.June, day, hour, min, sec, 0, santiago)
	}

	cases := []struct {
		name     string
		t        time.Time
		expected bool
	}{
		{"weekday before opening", at(16, 5, 59, 59), false},
		{"weekday opening", at(16, 6, 0, 0), true},
		{"weekday noon", at(18, 12, 0, 0), true},
		{"weekday closing minute", at(20, 23, 0, 45), true},
		{"weekday after closing", at(20, 23, 1, 0), false},
		{"saturday early", at(21, 6, 15, 0), false},
		{"saturday opening", at(21, 6, 30, 0), true},
		{"sunday early", at(22, 7, 29, 0), false},
		{"sunday opening", at(22, 7, 30, 0), true},
		{"sunday closing", at(22, 23, 0, 0), true},
		{"midnight", at(22, 0, 0, 0), false},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, hours.InService(c.t), c.name)
	}
}

func TestInService_ConvertsToLocation(t *testing.T) {
	hours := DefaultServiceHours(santiago)
	// 09:30 UTC is 05:30 in Santiago on a Monday
	assert.False(t, hours.InService(time.Date(2025, time.June, 16, 9, 30, 0, 0, time.UTC)))
	assert.True(t, hours.InService(time.Date(2025, time.June, 16, 10, 0, 0, 0, time.UTC)))
}
