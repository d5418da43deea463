package policy

import (
	"testing"
	"time"
)

func TestPrincipalName(t *testing.T) {
	tests := []struct {
		name string
		arn  string
		want string
	}{
		{
			name: "role",
			arn:  "arn:aws:iam::123456789012:role/ci-deployer",
			want: "ci-deployer",
		},
		{
			name: "user",
			arn:  "arn:aws:iam::123456789012:user/batch-runner",
			want: "batch-runner",
		},
		{
			name: "role with path",
			arn:  "arn:aws:iam::123456789012:role/ops/ci-deployer",
			want: "ci-deployer",
		},
		{
			name: "no slash",
			arn:  "ci-deployer",
			want: "ci-deployer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Principal{Type: PrincipalRole, ARN: tt.arn}
			if got := p.Name(); got != tt.want {
				t.Errorf("Name() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestModeValid(t *testing.T) {
	for _, m := range []Mode{ModeSimulate, ModeApprove, ModeAutomatic} {
		if !m.Valid() {
			t.Errorf("mode %q should be valid", m)
		}
	}
	if Mode("dry_run").Valid() {
		t.Error("unknown mode should be invalid")
	}
}

func TestExceptionWindowContains(t *testing.T) {
	// 2026-01-05 is a Monday. 18:00 UTC on the 4th is 03:00 JST on the 5th.
	window := ExceptionWindow{
		Start:    "02:00",
		End:      "04:00",
		Timezone: "Asia/Tokyo",
		Days:     []string{"mon"},
	}

	tests := []struct {
		name   string
		window ExceptionWindow
		at     time.Time
		want   bool
	}{
		{
			name:   "inside window in local time",
			window: window,
			at:     time.Date(2026, 1, 4, 18, 0, 0, 0, time.UTC),
			want:   true,
		},
		{
			name:   "before start",
			window: window,
			at:     time.Date(2026, 1, 4, 16, 30, 0, 0, time.UTC),
			want:   false,
		},
		{
			name:   "end is inclusive",
			window: window,
			at:     time.Date(2026, 1, 4, 19, 0, 0, 0, time.UTC),
			want:   true,
		},
		{
			name:   "just past end",
			window: window,
			at:     time.Date(2026, 1, 4, 19, 1, 0, 0, time.UTC),
			want:   false,
		},
		{
			name: "wrong weekday in local time",
			window: ExceptionWindow{
				Start: "02:00", End: "04:00", Timezone: "Asia/Tokyo", Days: []string{"tue"},
			},
			at:   time.Date(2026, 1, 4, 18, 0, 0, 0, time.UTC),
			want: false,
		},
		{
			name: "no days means every day",
			window: ExceptionWindow{
				Start: "02:00", End: "04:00", Timezone: "Asia/Tokyo",
			},
			at:   time.Date(2026, 1, 4, 18, 0, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "day abbreviations are case insensitive",
			window: ExceptionWindow{
				Start: "02:00", End: "04:00", Timezone: "Asia/Tokyo", Days: []string{"MON"},
			},
			at:   time.Date(2026, 1, 4, 18, 0, 0, 0, time.UTC),
			want: true,
		},
		{
			name: "unknown timezone never contains",
			window: ExceptionWindow{
				Start: "02:00", End: "04:00", Timezone: "Mars/Olympus",
			},
			at:   time.Date(2026, 1, 4, 18, 0, 0, 0, time.UTC),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.window.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "00:00", want: 0},
		{in: "09:30", want: 570},
		{in: "23:59", want: 1439},
		{in: "9:05", want: 545},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "12:30:45", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseClock(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseClock(%q) should fail", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseClock(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("parseClock(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
