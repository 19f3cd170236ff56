package model

import "time"

// User represents an application account as stored in the `users`
// table.  Hosts and registered performers are both users; Role
// distinguishes site administrators from everyone else.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Email        – unique, normalized email address.
//  First, Last  – display name parts.
//  PasswordHash – bcrypt hashed password.
//  Role         – USER or ADMIN.
//  IsActive     – whether the account is active.
//  CreatedAt    – timestamp of creation.
//  UpdatedAt    – timestamp of last update.
type User struct {
    ID           uint64    // users.id
    Email        string    // users.email
    First        string    // users.first_name
    Last         string    // users.last_name
    PasswordHash string    // users.password_hash
    Role         string    // users.role
    IsActive     bool      // users.is_active
    CreatedAt    time.Time // users.created_at
    UpdatedAt    time.Time // users.updated_at
}

// DisplayName joins first and last name the way rosters show it.
func (u User) DisplayName() string {
    if u.Last == "" {
        return u.First
    }
    return u.First + " " + u.Last
}

// Account roles stored in users.role.
const (
    RoleUser  = "USER"
    RoleAdmin = "ADMIN"
)

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is not stored; only its SHA‑256 hash.
type RefreshToken struct {
    ID        uint64     // refresh_tokens.id
    UserID    uint64     // refresh_tokens.user_id
    TokenHash string     // refresh_tokens.token_hash
    ExpiresAt time.Time  // refresh_tokens.expires_at
    RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
    CreatedAt time.Time  // refresh_tokens.created_at
}
