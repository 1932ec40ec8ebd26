package validation

import (
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	MaxPlayerNameLength = 25
	MaxReasonLength     = 200
	MinPasswordLength   = 4
	MaxPasswordLength   = 72 // bcrypt input limit
	MaxVipLevel         = 3
	MaxRooms            = 32
)

var (
	// ConnRegex matches the hex-encoded connection id the game server reports
	ConnRegex = regexp.MustCompile(`^[0-9A-Fa-f]{1,64}$`)
)

// ValidatePlayerName validates a player nickname
func ValidatePlayerName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(name) > MaxPlayerNameLength {
		return fmt.Errorf("name is too long (max %d characters)", MaxPlayerNameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("name contains invalid characters")
	}
	return nil
}

// ValidateReason validates a ban or mute reason. Empty is allowed.
func ValidateReason(reason string) error {
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return fmt.Errorf("reason is too long (max %d characters)", MaxReasonLength)
	}
	return nil
}

// ValidateConn validates an optional connection id
func ValidateConn(conn string) error {
	if conn == "" {
		return nil
	}
	if !ConnRegex.MatchString(conn) {
		return fmt.Errorf("invalid conn format")
	}
	return nil
}

// ValidateIPv4 validates an optional IPv4 address
func ValidateIPv4(ip string) error {
	if ip == "" {
		return nil
	}
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.To4() == nil {
		return fmt.Errorf("invalid IPv4 address")
	}
	return nil
}

// ValidatePassword validates a plain-text player password
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("password is too long (max %d bytes)", MaxPasswordLength)
	}
	return nil
}

// ValidateVipLevel validates a legend (VIP) tier
func ValidateVipLevel(level int) error {
	if level < 1 || level > MaxVipLevel {
		return fmt.Errorf("vipLevel must be between 1 and %d", MaxVipLevel)
	}
	return nil
}

// ValidateExpiration requires the expiration to be after now
func ValidateExpiration(expiresAt, now time.Time) error {
	if expiresAt.IsZero() {
		return fmt.Errorf("expirationDate is required")
	}
	if !expiresAt.After(now) {
		return fmt.Errorf("expirationDate must be in the future")
	}
	return nil
}

// ValidateRooms validates the room list of a moderator grant
func ValidateRooms(rooms []int) error {
	if len(rooms) == 0 {
		return fmt.Errorf("rooms must contain at least one room")
	}
	if len(rooms) > MaxRooms {
		return fmt.Errorf("too many rooms (max %d)", MaxRooms)
	}
	seen := make(map[int]struct{}, len(rooms))
	for _, r := range rooms {
		if r < 0 {
			return fmt.Errorf("room ids must be >= 0")
		}
		if _, dup := seen[r]; dup {
			return fmt.Errorf("duplicate room %d", r)
		}
		seen[r] = struct{}{}
	}
	return nil
}

// ParseTimestamp parses an ISO-8601 timestamp as sent by the dashboard.
// An empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp: %q", s)
	}
	return t.UTC(), nil
}
