package dispatch

import "testing"

func TestParseResponse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
		want Response
		ok   bool
	}{
		{"confirm", "confirm_42", Response{Kind: ResponseConfirm, ReminderID: 42}, true},
		{"snooze", "snooze_7", Response{Kind: ResponseSnooze, ReminderID: 7}, true},
		{"unknown action", "remind_7", Response{}, false},
		{"no separator", "confirm42", Response{}, false},
		{"bad id", "confirm_abc", Response{}, false},
		{"trailing junk", "confirm_12_34", Response{}, false},
		{"zero id", "snooze_0", Response{}, false},
		{"negative id", "confirm_-3", Response{}, false},
		{"empty", "", Response{}, false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseResponse(tt.data)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("ParseResponse(%q) = %+v, %v, want %+v, %v", tt.data, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestResponseDataRoundTrip(t *testing.T) {
	t.Parallel()
	for _, kind := range []ResponseKind{ResponseConfirm, ResponseSnooze} {
		data := ResponseData(kind, 99)
		got, ok := ParseResponse(data)
		if !ok {
			t.Fatalf("ParseResponse(%q) not ok", data)
		}
		if got.Kind != kind || got.ReminderID != 99 {
			t.Fatalf("round trip %q = %+v", data, got)
		}
	}
}
