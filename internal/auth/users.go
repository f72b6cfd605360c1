package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
)

var ErrBadCredentials = errors.New("auth: bad credentials")

// UserTable is the static dashboard user list, parsed from configuration.
// User management is owned by the surrounding platform; the engine only
// authenticates the handful of dashboard operators it is given.
type UserTable struct {
	users map[string]userEntry
}

type userEntry struct {
	passwordHash [32]byte
	role         string
}

// ParseUsers parses "name:password:role" entries separated by commas.
func ParseUsers(spec string) (*UserTable, error) {
	t := &UserTable{users: map[string]userEntry{}}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("auth: malformed user entry %q, want name:password:role", entry)
		}
		name := parts[0]
		if _, dup := t.users[name]; dup {
			return nil, fmt.Errorf("auth: duplicate user %q", name)
		}
		t.users[name] = userEntry{
			passwordHash: sha256.Sum256([]byte(parts[1])),
			role:         parts[2],
		}
	}
	if len(t.users) == 0 {
		return nil, errors.New("auth: no users configured")
	}
	return t, nil
}

// Authenticate checks credentials in constant time and returns the role.
func (t *UserTable) Authenticate(name, password string) (string, error) {
	u, ok := t.users[name]
	given := sha256.Sum256([]byte(password))
	if !ok {
		// Burn the comparison anyway so unknown names cost the same.
		subtle.ConstantTimeCompare(given[:], given[:])
		return "", ErrBadCredentials
	}
	if subtle.ConstantTimeCompare(given[:], u.passwordHash[:]) != 1 {
		return "", ErrBadCredentials
	}
	return u.role, nil
}

// Role returns the configured role for a known user.
func (t *UserTable) Role(name string) (string, error) {
	u, ok := t.users[name]
	if !ok {
		return "", ErrBadCredentials
	}
	return u.role, nil
}
