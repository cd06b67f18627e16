package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ChannelNameRegex validates the media channel naming convention
	// call_{smallerUserId}_{largerUserId}.
	ChannelNameRegex = regexp.MustCompile(`^call_(\d+)_(\d+)$`)

	// UsernameRegex validates login usernames
	UsernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateUsername validates a login username.
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters")
	}
	if len(username) > 50 {
		return fmt.Errorf("username is too long (max 50 characters)")
	}
	if !UsernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidatePassword validates a login password.
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password is required")
	}
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters")
	}
	if len(password) > 128 {
		return fmt.Errorf("password is too long (max 128 characters)")
	}
	return nil
}

// ValidateChannelName checks the call_{min}_{max} convention and that the
// embedded participant ids are ordered.
func ValidateChannelName(channel string) error {
	if channel == "" {
		return fmt.Errorf("channel name is required")
	}
	if len(channel) > 64 {
		return fmt.Errorf("channel name is too long (max 64 characters)")
	}
	m := ChannelNameRegex.FindStringSubmatch(channel)
	if m == nil {
		return fmt.Errorf("invalid channel name format (expected call_{id}_{id})")
	}
	a, errA := strconv.ParseInt(m[1], 10, 64)
	b, errB := strconv.ParseInt(m[2], 10, 64)
	if errA != nil || errB != nil {
		return fmt.Errorf("invalid participant ids in channel name")
	}
	if a > b {
		return fmt.Errorf("channel name ids must be ordered smaller_larger")
	}
	return nil
}

// ChannelParticipants extracts the two participant ids from a channel name.
func ChannelParticipants(channel string) (int64, int64, error) {
	if err := ValidateChannelName(channel); err != nil {
		return 0, 0, err
	}
	m := ChannelNameRegex.FindStringSubmatch(channel)
	a, _ := strconv.ParseInt(m[1], 10, 64)
	b, _ := strconv.ParseInt(m[2], 10, 64)
	return a, b, nil
}

// ValidateTokenTTL bounds the requested media token lifetime.
func ValidateTokenTTL(ttlSeconds int) error {
	if ttlSeconds <= 0 {
		return fmt.Errorf("ttl must be > 0")
	}
	if ttlSeconds > 24*3600 {
		return fmt.Errorf("ttl must be at most 24 hours")
	}
	return nil
}
