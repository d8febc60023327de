package domain

import "time"

// RefreshToken is one link in a rotation chain. Only the peppered SHA-256
// hash of the opaque value is stored; the raw value exists solely in the
// client's cookie.
type RefreshToken struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	TokenHash string     `gorm:"size:128;uniqueIndex;not null" json:"-"`
	UserID    uint       `gorm:"index;not null" json:"user_id"`
	User      User       `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ExpiresAt time.Time  `gorm:"index;not null" json:"expires_at"`
	RevokedAt *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (t *RefreshToken) Revoked() bool { return t.RevokedAt != nil }

func (t *RefreshToken) Expired(now time.Time) bool { return !t.ExpiresAt.After(now) }

// Live reports whether the token may still be presented for rotation.
func (t *RefreshToken) Live(now time.Time) bool {
	return !t.Revoked() && !t.Expired(now)
}
