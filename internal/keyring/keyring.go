// Package keyring keeps the database connection string in the OS keyring so it
// never has to appear in config files or process arguments.
package keyring

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/zalando/go-keyring"

	"github.com/julianstephens/habittrack/internal/constants"
)

var (
	// ErrNotFound is returned when no secret is stored for the entry
	ErrNotFound = errors.New("credentials not found in keyring")
	// ErrKeyringUnavailable is returned when the OS keyring cannot be reached
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

const availabilityProbe = "availability-probe"

func get(user string) (string, error) {
	secret, err := keyring.Get(constants.AppName, user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return secret, nil
}

// GetConnectionString returns the stored database connection string
func GetConnectionString() (string, error) {
	return get(constants.DefaultKeyringUser)
}

// SetConnectionString stores connStr, replacing any previous value
func SetConnectionString(connStr string) error {
	if strings.TrimSpace(connStr) == "" {
		return errors.New("connection string cannot be empty")
	}
	if err := keyring.Set(constants.AppName, constants.DefaultKeyringUser, connStr); err != nil {
		return fmt.Errorf("failed to store credentials in keyring: %w", err)
	}
	return nil
}

// DeleteConnectionString removes the stored connection string
func DeleteConnectionString() error {
	if err := keyring.Delete(constants.AppName, constants.DefaultKeyringUser); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete credentials from keyring: %w", err)
	}
	return nil
}

// IsAvailable reports whether the keyring answers a read. Best effort.
func IsAvailable() bool {
	_, err := get(availabilityProbe)
	return err == nil || errors.Is(err, ErrNotFound)
}

// MaskPassword hides the password of a URL or key=value connection string
func MaskPassword(connStr string) string {
	if strings.HasPrefix(connStr, "postgres://") || strings.HasPrefix(connStr, "postgresql://") {
		u, err := url.Parse(connStr)
		if err != nil || u.User == nil {
			return connStr
		}
		if _, set := u.User.Password(); !set {
			return connStr
		}
		return strings.Replace(u.Redacted(), ":xxxxx@", ":****@", 1)
	}

	fields := strings.Fields(connStr)
	for i, field := range fields {
		key, _, ok := strings.Cut(field, "=")
		if ok && strings.EqualFold(key, "password") {
			fields[i] = key + "=****"
		}
	}
	return strings.Join(fields, " ")
}
