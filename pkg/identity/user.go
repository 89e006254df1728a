// Package identity manages portal users: blob-stored user records, password
// authentication, the flat permission model, and Azure AD token flows.
package identity

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agoraworks/agora/pkg/store"
)

// Role is a user's portal role.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleManager  Role = "manager"
	RoleStandard Role = "standard"
	RoleLimited  Role = "limited"
	RoleGuest    Role = "guest"
)

// User is one portal user, stored as {username}.json in the user container.
type User struct {
	Username     string   `json:"username"`
	PasswordHash string   `json:"password_hash,omitempty"`
	Role         Role     `json:"role"`
	Permissions  []string `json:"permissions"`

	// Profile fields filled from Microsoft Graph for Azure AD users.
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HashPassword returns the hex SHA-256 of the password. The scheme matches
// the records already in storage; changing it would orphan every existing
// user blob.
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// CheckPassword compares in constant time.
func (u *User) CheckPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(u.PasswordHash), []byte(HashPassword(password))) == 1
}

// HasPermission evaluates the flat permission list for one agent/action
// pair. Empty username or agent short-circuits to false. Admins and the
// "all" permission grant everything; a bare action ("chat") grants it on
// every agent; "{agent}:{action}" grants it on one.
func (u *User) HasPermission(agentID, action string) bool {
	if u == nil || u.Username == "" || agentID == "" {
		return false
	}
	if u.Role == RoleAdmin {
		return true
	}
	for _, p := range u.Permissions {
		switch p {
		case "all", action, agentID + ":" + action:
			return true
		}
	}
	return false
}

// DefaultPermissions returns the baseline permission list for a role.
func DefaultPermissions(role Role) []string {
	switch role {
	case RoleAdmin:
		return []string{"all"}
	case RoleStandard:
		return []string{"access", "chat", "view"}
	case RoleLimited:
		return []string{"access"}
	default:
		return []string{}
	}
}

// decodeUser validates a stored record at the deserialization boundary.
func decodeUser(data []byte) (*User, error) {
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidData, err)
	}
	if u.Username == "" {
		return nil, fmt.Errorf("%w: user record missing username", store.ErrInvalidData)
	}
	if u.Role == "" {
		u.Role = RoleGuest
	}
	if u.Permissions == nil {
		u.Permissions = []string{}
	}
	return &u, nil
}

func encodeUser(u *User) ([]byte, error) {
	data, err := json.MarshalIndent(u, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidData, err)
	}
	return data, nil
}
