package router

import (
	"reflect"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"plain", "/delete 42", []string{"/delete", "42"}},
		{"collapsed spaces", "  /set   now  ", []string{"/set", "now"}},
		{"double quotes", `/set "water the plants" 08:30`, []string{"/set", "water the plants", "08:30"}},
		{"single quotes", `/set 'call mom' 20:00`, []string{"/set", "call mom", "20:00"}},
		{"escaped quote", `/set say\"hi`, []string{"/set", `say"hi`}},
		{"empty", "   ", nil},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := tokenizeCommandLine(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("tokenize(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		in        []string
		wantPos   []string
		wantFlags map[string]string
		wantBools map[string]bool
	}{
		{
			name:      "positional only",
			in:        []string{"42"},
			wantPos:   []string{"42"},
			wantFlags: map[string]string{},
			wantBools: map[string]bool{},
		},
		{
			name:      "long with equals",
			in:        []string{"--limit=5"},
			wantFlags: map[string]string{"limit": "5"},
			wantBools: map[string]bool{},
		},
		{
			name:      "long with value token",
			in:        []string{"--limit", "5", "rest"},
			wantPos:   []string{"rest"},
			wantFlags: map[string]string{"limit": "5"},
			wantBools: map[string]bool{},
		},
		{
			name:      "long bool",
			in:        []string{"--all"},
			wantFlags: map[string]string{},
			wantBools: map[string]bool{"all": true},
		},
		{
			name:      "short cluster",
			in:        []string{"-abc"},
			wantFlags: map[string]string{},
			wantBools: map[string]bool{"a": true, "b": true, "c": true},
		},
		{
			name:      "short with value",
			in:        []string{"-n", "3"},
			wantFlags: map[string]string{"n": "3"},
			wantBools: map[string]bool{},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			pos, flags, bools := parseFlags(tt.in)
			if !reflect.DeepEqual(pos, tt.wantPos) {
				t.Errorf("pos = %v, want %v", pos, tt.wantPos)
			}
			if !reflect.DeepEqual(flags, tt.wantFlags) {
				t.Errorf("flags = %v, want %v", flags, tt.wantFlags)
			}
			if !reflect.DeepEqual(bools, tt.wantBools) {
				t.Errorf("bools = %v, want %v", bools, tt.wantBools)
			}
		})
	}
}

func TestSplitRoute(t *testing.T) {
	t.Parallel()
	if got := splitRoute("  users   block "); !reflect.DeepEqual(got, []string{"users", "block"}) {
		t.Fatalf("splitRoute = %v", got)
	}
	if got := splitRoute(""); got != nil {
		t.Fatalf("splitRoute(empty) = %v, want nil", got)
	}
}

func TestNewReqIDUnique(t *testing.T) {
	t.Parallel()
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := newReqID()
		if id == "" {
			t.Fatal("empty request id")
		}
		if seen[id] {
			t.Fatalf("duplicate request id %q", id)
		}
		seen[id] = true
	}
}
