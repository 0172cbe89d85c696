package model

import "time"

// Roles stored in members.role and carried in the JWT "role" claim.
const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
)

// InitialCredit is the credit score assigned on registration.
const InitialCredit = 100

// Member represents a registered user of the reservation system as
// stored in the `members` table.  Credit gates how long a member may
// book a seat for and is reduced by violations.
//
// Fields:
//  ID           – primary key identifier.
//  Name         – unique display name.
//  Email        – unique login email.
//  PasswordHash – bcrypt hashed password.
//  Role         – MEMBER or ADMIN.
//  Credit       – score clamped to 0..100.
//  CreatedAt    – registration timestamp.
type Member struct {
	ID           uint64    // members.id
	Name         string    // members.name
	Email        string    // members.email
	PasswordHash string    // members.password_hash
	Role         string    // members.role
	Credit       int       // members.credit
	CreatedAt    time.Time // members.created_at
}

// IsAdmin reports whether the member holds the administrator role.
func (m Member) IsAdmin() bool { return m.Role == RoleAdmin }

// RefreshToken models an entry in the `refresh_tokens` table.  Only
// the SHA‑256 hash of the token value is persisted.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	MemberID  uint64     // refresh_tokens.member_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}
