package model

import "time"

// Admin roles accepted by the back office.
const (
    RoleAdmin      = "ADMIN"
    RoleSuperAdmin = "SUPER_ADMIN"
)

// User is a back-office account. Applicants never log in; they reserve as
// guests identified by name and phone.
type User struct {
    ID           uint64    `db:"id"`
    Email        string    `db:"email"`
    PasswordHash string    `db:"password_hash"` // bcrypt
    Role         string    `db:"role"`
    IsActive     bool      `db:"is_active"`
    CreatedAt    time.Time `db:"created_at"`
    UpdatedAt    time.Time `db:"updated_at"`
}

// IsAdminRole reports whether role may be assigned to an account.
func IsAdminRole(role string) bool {
    return role == RoleAdmin || role == RoleSuperAdmin
}

// RefreshToken models an entry in the `refresh_tokens` table.  Only the
// SHA-256 hash of the token value is stored.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
