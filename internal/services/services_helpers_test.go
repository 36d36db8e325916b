package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/burnnote/internal/database/testutil"
	"github.com/charlesng35/burnnote/internal/models"
	"github.com/charlesng35/burnnote/internal/vault"
	"github.com/charlesng35/burnnote/pkg/crypto"
)

type fakeClock struct {
	current time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{current: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.current }

func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func openServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

func seedUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

func fastPassphraseGate(t *testing.T) *vault.PassphraseGate {
	t.Helper()
	gate, err := vault.NewPassphraseGate(crypto.Argon2Parameters{Time: 1, Memory: 1024, Threads: 1, KeyLength: 32})
	require.NoError(t, err)
	return gate
}

func newTestSecretService(t *testing.T, db *gorm.DB, clock *fakeClock) (*SecretService, *AuditService) {
	t.Helper()

	audit, err := NewAuditService(db)
	require.NoError(t, err)

	master, err := vault.NewMasterKey([]byte("services-test-master"),
		vault.WithArgon2Parameters(crypto.Argon2Parameters{Time: 1, Memory: 1024, Threads: 1, KeyLength: 32}))
	require.NoError(t, err)

	svc, err := NewSecretService(db, vault.NewBox(master), audit,
		WithSecretClock(clock.Now),
		WithPassphraseGate(fastPassphraseGate(t)),
	)
	require.NoError(t, err)
	return svc, audit
}

func newBoxForTest(t *testing.T) *vault.Box {
	t.Helper()
	return vault.NewBox(nil)
}
