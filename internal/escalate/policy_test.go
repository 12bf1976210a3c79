package escalate

import "testing"

func TestNextDelayMinutes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		attempt int
		base    int
		want    int
	}{
		{name: "first attempt keeps base", attempt: 0, base: 5, want: 5},
		{name: "second attempt keeps base", attempt: 1, base: 5, want: 5},
		{name: "third attempt doubles", attempt: 2, base: 5, want: 10},
		{name: "fourth attempt triples", attempt: 3, base: 5, want: 15},
		{name: "fifth attempt x5", attempt: 4, base: 5, want: 25},
		{name: "sixth attempt capped", attempt: 5, base: 10, want: 30},
		{name: "beyond table reuses last multiplier", attempt: 9, base: 5, want: 30},
		{name: "cap applies to large base", attempt: 2, base: 20, want: 30},
		{name: "negative attempt clamped", attempt: -1, base: 5, want: 5},
		{name: "zero base clamped to one", attempt: 0, base: 0, want: 1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := NextDelayMinutes(tt.attempt, tt.base)
			if got != tt.want {
				t.Fatalf("NextDelayMinutes(%d, %d) = %d, want %d", tt.attempt, tt.base, got, tt.want)
			}
		})
	}
}

func TestUrgencyBands(t *testing.T) {
	t.Parallel()
	tests := []struct {
		attempt int
		want    Urgency
		icon    string
	}{
		{attempt: 0, want: Low, icon: "🔔"},
		{attempt: 1, want: Low, icon: "🔔"},
		{attempt: 2, want: Medium, icon: "⚠️"},
		{attempt: 3, want: Medium, icon: "⚠️"},
		{attempt: 4, want: High, icon: "🚨"},
		{attempt: 12, want: High, icon: "🚨"},
	}
	for _, tt := range tests {
		got := UrgencyFor(tt.attempt)
		if got != tt.want {
			t.Fatalf("UrgencyFor(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
		if got.Icon() != tt.icon {
			t.Fatalf("UrgencyFor(%d).Icon() = %q, want %q", tt.attempt, got.Icon(), tt.icon)
		}
	}
}
