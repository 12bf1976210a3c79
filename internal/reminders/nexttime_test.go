package reminders

import (
	"errors"
	"testing"
	"time"
)

func TestNextOccurrence(t *testing.T) {
	t.Parallel()

	// Monday noon.
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		now      time.Time
		clock    string
		interval int
		loc      *time.Location
		want     time.Time
	}{
		{
			name:     "later today",
			now:      now,
			clock:    "14:30",
			interval: 7,
			loc:      time.UTC,
			want:     time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
		},
		{
			name:     "passed today advances by interval",
			now:      now,
			clock:    "09:00",
			interval: 7,
			loc:      time.UTC,
			want:     time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "passed one-shot lands tomorrow",
			now:      now,
			clock:    "09:00",
			interval: 0,
			loc:      time.UTC,
			want:     time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC),
		},
		{
			name:     "exactly now advances",
			now:      time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC),
			clock:    "14:30",
			interval: 1,
			loc:      time.UTC,
			want:     time.Date(2025, 3, 11, 14, 30, 0, 0, time.UTC),
		},
		{
			name:     "resolved in zone, returned in UTC",
			now:      time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC), // 13:00 local
			clock:    "14:30",
			interval: 1,
			loc:      time.FixedZone("UTC+3", 3*3600),
			want:     time.Date(2025, 3, 10, 11, 30, 0, 0, time.UTC),
		},
		{
			name:     "single digit hour",
			now:      now,
			clock:    "8:15",
			interval: 1,
			loc:      time.UTC,
			want:     time.Date(2025, 3, 11, 8, 15, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := NextOccurrence(tt.now, tt.clock, tt.interval, tt.loc)
			if err != nil {
				t.Fatalf("NextOccurrence err = %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("NextOccurrence = %v, want %v", got, tt.want)
			}
			if got.Location() != time.UTC {
				t.Fatalf("NextOccurrence location = %v, want UTC", got.Location())
			}
		})
	}
}

func TestNextOccurrenceBadClock(t *testing.T) {
	t.Parallel()

	_, err := NextOccurrence(time.Now(), "24:00", 1, time.UTC)
	if !errors.Is(err, ErrBadTime) {
		t.Fatalf("NextOccurrence err = %v, want ErrBadTime", err)
	}
}
