package reminders

import (
	"errors"
	"strings"
	"testing"
)

func TestParseClock(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{in: "08:30", hour: 8, minute: 30},
		{in: "8:30", hour: 8, minute: 30},
		{in: "00:00", hour: 0, minute: 0},
		{in: "23:59", hour: 23, minute: 59},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "8:5", wantErr: true},
		{in: "8:305", wantErr: true},
		{in: "123:00", wantErr: true},
		{in: ":30", wantErr: true},
		{in: "12.30", wantErr: true},
		{in: "1a:22", wantErr: true},
		{in: "-1:30", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			h, m, err := ParseClock(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrBadTime) {
					t.Fatalf("ParseClock(%q) err = %v, want ErrBadTime", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseClock(%q) err = %v", tt.in, err)
			}
			if h != tt.hour || m != tt.minute {
				t.Fatalf("ParseClock(%q) = %d:%d, want %d:%d", tt.in, h, m, tt.hour, tt.minute)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	var set Settings
	set.applyDefaults()

	tests := []struct {
		name    string
		in      CreateInput
		wantErr error
	}{
		{
			name: "valid with defaults",
			in:   CreateInput{UserID: 7, Text: "  drink water  ", ScheduleTime: "14:30", IntervalDays: 1},
		},
		{
			name:    "empty text",
			in:      CreateInput{UserID: 7, Text: "   ", ScheduleTime: "14:30"},
			wantErr: ErrEmptyText,
		},
		{
			name:    "text too long",
			in:      CreateInput{UserID: 7, Text: strings.Repeat("x", 501), ScheduleTime: "14:30"},
			wantErr: ErrTextTooLong,
		},
		{
			name:    "bad time",
			in:      CreateInput{UserID: 7, Text: "t", ScheduleTime: "25:00"},
			wantErr: ErrBadTime,
		},
		{
			name:    "interval negative",
			in:      CreateInput{UserID: 7, Text: "t", ScheduleTime: "14:30", IntervalDays: -1},
			wantErr: ErrBadInterval,
		},
		{
			name:    "interval too large",
			in:      CreateInput{UserID: 7, Text: "t", ScheduleTime: "14:30", IntervalDays: 366},
			wantErr: ErrBadInterval,
		},
		{
			name:    "notify interval out of range",
			in:      CreateInput{UserID: 7, Text: "t", ScheduleTime: "14:30", NotifyIntervalMin: 61},
			wantErr: ErrBadNotifyInterval,
		},
		{
			name:    "max notifications out of range",
			in:      CreateInput{UserID: 7, Text: "t", ScheduleTime: "14:30", MaxNotifications: 51},
			wantErr: ErrBadMaxNotifications,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := tt.in
			err := in.normalize(set)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("normalize err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize err = %v", err)
			}
		})
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	t.Parallel()

	var set Settings
	set.applyDefaults()

	in := CreateInput{UserID: 7, Text: " walk ", ScheduleTime: "8:00"}
	if err := in.normalize(set); err != nil {
		t.Fatalf("normalize err = %v", err)
	}
	if in.Text != "walk" {
		t.Errorf("Text = %q, want %q", in.Text, "walk")
	}
	if in.ScheduleTime != "8:00" {
		t.Errorf("ScheduleTime = %q, want kept as entered", in.ScheduleTime)
	}
	if in.NotifyIntervalMin != 5 {
		t.Errorf("NotifyIntervalMin = %d, want 5", in.NotifyIntervalMin)
	}
	if in.MaxNotifications != 10 {
		t.Errorf("MaxNotifications = %d, want 10", in.MaxNotifications)
	}
	if in.ChatID != 7 {
		t.Errorf("ChatID = %d, want user id 7", in.ChatID)
	}

	in = CreateInput{UserID: 7, ChatID: -100200, Text: "t", ScheduleTime: "8:00", NotifyIntervalMin: 7, MaxNotifications: 3}
	if err := in.normalize(set); err != nil {
		t.Fatalf("normalize err = %v", err)
	}
	if in.ChatID != -100200 {
		t.Errorf("ChatID = %d, want explicit -100200 kept", in.ChatID)
	}
	if in.NotifyIntervalMin != 7 || in.MaxNotifications != 3 {
		t.Errorf("explicit knobs changed: notify %d, max %d", in.NotifyIntervalMin, in.MaxNotifications)
	}
}
