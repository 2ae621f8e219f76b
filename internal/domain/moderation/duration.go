package moderation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kcrp/rp-dashboard/internal/pkg/validator"
)

// Permanent is the duration value of a ban without expiry.
const Permanent = "permanent"

const (
	minBan = time.Hour
	maxBan = 30 * 24 * time.Hour
)

// BanDurations are the choices offered by the dashboard.
var BanDurations = []string{"1 hour", "6 hours", "1 day", "3 days", "7 days", "14 days", "30 days", Permanent}

// BanDuration is a parsed ban length. Permanent bans have no length.
type BanDuration struct {
	Text      string
	Length    time.Duration
	Permanent bool
}

// ExpiresAt returns the expiry for a ban issued at now, or nil when permanent.
func (d BanDuration) ExpiresAt(now time.Time) *time.Time {
	if d.Permanent {
		return nil
	}
	t := now.Add(d.Length)
	return &t
}

// ParseBanDuration accepts "permanent" or "<n> hour(s)|day(s)" between one
// hour and thirty days.
func ParseBanDuration(s string) (BanDuration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return BanDuration{}, ErrBanDurationRequired
	}
	if s == Permanent {
		return BanDuration{Text: Permanent, Permanent: true}, nil
	}

	fields := strings.Fields(s)
	if len(fields) != 2 {
		return BanDuration{}, fmt.Errorf("%w: %q", ErrInvalidBanDuration, s)
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n <= 0 {
		return BanDuration{}, fmt.Errorf("%w: %q", ErrInvalidBanDuration, s)
	}

	var unit time.Duration
	switch fields[1] {
	case "hour", "hours":
		unit = time.Hour
	case "day", "days":
		unit = 24 * time.Hour
	default:
		return BanDuration{}, fmt.Errorf("%w: %q", ErrInvalidBanDuration, s)
	}

	length := time.Duration(n) * unit
	if length < minBan || length > maxBan {
		return BanDuration{}, fmt.Errorf("%w: %q is outside 1 hour to 30 days", ErrInvalidBanDuration, s)
	}
	return BanDuration{Text: s, Length: length}, nil
}

func init() {
	validator.RegisterStringRule("ban_duration", func(s string) bool {
		_, err := ParseBanDuration(s)
		return err == nil
	}, "Invalid duration. Use e.g. '1 hour', '7 days' or 'permanent'")
}
