package moderation

import (
	"errors"
	"testing"
	"time"
)

func TestParseBanDuration(t *testing.T) {
	tests := []struct {
		in        string
		length    time.Duration
		permanent bool
		err       error
	}{
		{"1 hour", time.Hour, false, nil},
		{"6 hours", 6 * time.Hour, false, nil},
		{"7 Days", 7 * 24 * time.Hour, false, nil},
		{"30 days", 30 * 24 * time.Hour, false, nil},
		{" permanent ", 0, true, nil},
		{"", 0, false, ErrBanDurationRequired},
		{"31 days", 0, false, ErrInvalidBanDuration},
		{"0 hours", 0, false, ErrInvalidBanDuration},
		{"2 weeks", 0, false, ErrInvalidBanDuration},
		{"forever", 0, false, ErrInvalidBanDuration},
		{"-1 day", 0, false, ErrInvalidBanDuration},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseBanDuration(tt.in)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Length != tt.length || d.Permanent != tt.permanent {
				t.Fatalf("got %+v", d)
			}
		})
	}
}

func TestBanDurationExpiry(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	d, _ := ParseBanDuration("1 day")
	if got := d.ExpiresAt(now); got == nil || !got.Equal(now.Add(24*time.Hour)) {
		t.Fatalf("expected expiry one day later, got %v", got)
	}

	p, _ := ParseBanDuration(Permanent)
	if got := p.ExpiresAt(now); got != nil {
		t.Fatalf("expected no expiry for permanent ban, got %v", got)
	}
}

func TestOfferedDurationsParse(t *testing.T) {
	for _, s := range BanDurations {
		if _, err := ParseBanDuration(s); err != nil {
			t.Fatalf("offered duration %q rejected: %v", s, err)
		}
	}
}
