package models

import "time"

// SecretState is the lifecycle state derived from a secret's flags.
type SecretState string

const (
	SecretStateLive      SecretState = "live"
	SecretStateViewed    SecretState = "viewed"
	SecretStateDestroyed SecretState = "destroyed"
	// SecretStateConsumed is shown to callers other than the owner in place
	// of viewed or destroyed.
	SecretStateConsumed SecretState = "consumed"
)

// Destruction animations shown by clients after a secret is read.
const (
	AnimationNone    = "none"
	AnimationFire    = "fire"
	AnimationExplode = "explode"
	AnimationShred   = "shred"
)

var animations = map[string]struct{}{
	AnimationNone:    {},
	AnimationFire:    {},
	AnimationExplode: {},
	AnimationShred:   {},
}

// ValidAnimation reports whether name is a known destruction animation.
func ValidAnimation(name string) bool {
	_, ok := animations[name]
	return ok
}

// Secret is a sealed message that can be read at most once. Ciphertext and
// EncryptionKey are written at creation and only ever cleared, never replaced.
type Secret struct {
	BaseModel

	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`
	User   *User  `gorm:"foreignKey:UserID" json:"-"`

	Ciphertext    []byte `json:"-"`
	EncryptionKey string `gorm:"size:512" json:"-"`

	PassphraseHash string `gorm:"size:255" json:"-"`
	HasPassphrase  bool   `gorm:"not null;default:false" json:"has_passphrase"`

	ExpiresAt time.Time `gorm:"index;not null" json:"expires_at"`

	IsViewed    bool       `gorm:"not null;default:false;index" json:"is_viewed"`
	ViewedAt    *time.Time `json:"viewed_at,omitempty"`
	IsDestroyed bool       `gorm:"not null;default:false;index" json:"is_destroyed"`
	DestroyedAt *time.Time `json:"destroyed_at,omitempty"`

	DestructionAnimation string `gorm:"size:16;not null;default:none" json:"destruction_animation"`

	RedactedAt *time.Time `json:"-"`
}

// State returns the lifecycle state. Viewed and destroyed are terminal.
func (s *Secret) State() SecretState {
	switch {
	case s.IsViewed:
		return SecretStateViewed
	case s.IsDestroyed:
		return SecretStateDestroyed
	default:
		return SecretStateLive
	}
}

// IsLive reports whether the secret has not yet been viewed or destroyed.
func (s *Secret) IsLive() bool {
	return !s.IsViewed && !s.IsDestroyed
}

// IsExpired reports whether now is strictly after the expiry instant.
func (s *Secret) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
