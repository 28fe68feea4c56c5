package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var (
	// EmailRegex validates email format
	EmailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// StreamKeyRegex validates ingest stream key format
	StreamKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-?=]+$`)

	// DestinationNameRegex validates user-facing destination labels
	DestinationNameRegex = regexp.MustCompile(`^[a-zA-Z0-9 _\-().]+$`)
)

var knownPlatforms = map[string]bool{
	"twitch":   true,
	"youtube":  true,
	"facebook": true,
	"kick":     true,
	"custom":   true,
}

// ValidateEmail validates email address
func ValidateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email is too long (max 254 characters)")
	}
	if !EmailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateUsername validates username
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
	if !regexp.MustCompile(`^[a-zA-Z0-9_-]+$`).MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidatePassword validates password
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

// ValidatePlatform validates the destination platform identifier
func ValidatePlatform(platform string) error {
	if platform == "" {
		return fmt.Errorf("platform is required")
	}
	if !knownPlatforms[platform] {
		return fmt.Errorf("unknown platform %q (supported: twitch, youtube, facebook, kick, custom)", platform)
	}
	return nil
}

// ValidateStreamKey validates an ingest stream key
func ValidateStreamKey(key string) error {
	if key == "" {
		return fmt.Errorf("stream key is required")
	}
	if len(key) > 256 {
		return fmt.Errorf("stream key is too long (max 256 characters)")
	}
	if !StreamKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid stream key format")
	}
	return nil
}

// ValidateServerURL validates an RTMP/RTMPS ingest server URL
func ValidateServerURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("server URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid server URL: %v", err)
	}
	switch u.Scheme {
	case "rtmp", "rtmps", "srt":
	default:
		return fmt.Errorf("server URL scheme must be rtmp, rtmps or srt")
	}
	if u.Host == "" {
		return fmt.Errorf("server URL must include a host")
	}
	return nil
}

// ValidateDestinationName validates the display name of a destination
func ValidateDestinationName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("destination name is required")
	}
	if len(name) > 100 {
		return fmt.Errorf("destination name is too long (max 100 characters)")
	}
	if !DestinationNameRegex.MatchString(name) {
		return fmt.Errorf("destination name contains invalid characters")
	}
	return nil
}
