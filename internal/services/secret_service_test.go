package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/burnnote/internal/models"
	apperrors "github.com/charlesng35/burnnote/pkg/errors"
)

func TestSecretServiceCreateAndViewOnce(t *testing.T) {
	db := openServicesTestDB(t)
	clock := newFakeClock()
	svc, _ := newTestSecretService(t, db, clock)
	owner := seedUser(t, db, "owner@example.com")
	ctx := context.Background()

	meta, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "launch codes", Animation: "Fire"})
	require.NoError(t, err)
	require.Equal(t, models.SecretStateLive, meta.State)
	require.Equal(t, models.AnimationFire, meta.DestructionAnimation)
	require.True(t, meta.ExpiresAt.Equal(clock.Now().Add(DefaultSecretTTL)))
	require.False(t, meta.HasPassphrase)

	var stored models.Secret
	require.NoError(t, db.Take(&stored, "id = ?", meta.ID).Error)
	require.NotContains(t, string(stored.Ciphertext), "launch codes")
	require.NotEmpty(t, stored.EncryptionKey)

	result, err := svc.AttemptView(ctx, meta.ID, "")
	require.NoError(t, err)
	require.Equal(t, "launch codes", result.Message)
	require.Equal(t, models.SecretStateConsumed, result.Metadata.State)
	require.Nil(t, result.Metadata.ViewedAt)

	_, err = svc.AttemptView(ctx, meta.ID, "")
	require.ErrorIs(t, err, apperrors.ErrSecretConsumed)

	require.NoError(t, db.Take(&stored, "id = ?", meta.ID).Error)
	require.True(t, stored.IsViewed)
	require.NotNil(t, stored.ViewedAt)
	require.Empty(t, stored.Ciphertext)
	require.Empty(t, stored.EncryptionKey)
	require.NotNil(t, stored.RedactedAt)
}

func TestSecretServiceCreateValidation(t *testing.T) {
	db := openServicesTestDB(t)
	svc, _ := newTestSecretService(t, db, newFakeClock())
	owner := seedUser(t, db, "owner@example.com")
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "   "})
	require.ErrorIs(t, err, apperrors.ErrEmptyMessage)

	_, err = svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "x", TTL: 30 * time.Second})
	require.ErrorIs(t, err, apperrors.ErrInvalidTTL)

	_, err = svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "x", TTL: MaxSecretTTL + time.Second})
	require.ErrorIs(t, err, apperrors.ErrInvalidTTL)

	_, err = svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "x", Animation: "confetti"})
	require.ErrorIs(t, err, apperrors.ErrInvalidAnimation)

	_, err = svc.Create(ctx, CreateSecretInput{Message: "x"})
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	for _, ttl := range []time.Duration{MinSecretTTL, MaxSecretTTL} {
		_, err = svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "edge", TTL: ttl})
		require.NoError(t, err)
	}
}

func TestSecretServiceConcurrentViewsHaveOneWinner(t *testing.T) {
	db := openServicesTestDB(t)
	svc, _ := newTestSecretService(t, db, newFakeClock())
	owner := seedUser(t, db, "owner@example.com")

	meta, err := svc.Create(context.Background(), CreateSecretInput{OwnerID: owner.ID, Message: "only once"})
	require.NoError(t, err)

	const viewers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		messages []string
		consumed int
	)
	wg.Add(viewers)
	for i := 0; i < viewers; i++ {
		go func() {
			defer wg.Done()
			result, err := svc.AttemptView(context.Background(), meta.ID, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				messages = append(messages, result.Message)
				return
			}
			if errors.Is(err, apperrors.ErrSecretConsumed) {
				consumed++
			}
		}()
	}
	wg.Wait()

	require.Equal(t, []string{"only once"}, messages)
	require.Equal(t, viewers-1, consumed)
}

func TestSecretServicePassphrase(t *testing.T) {
	db := openServicesTestDB(t)
	svc, _ := newTestSecretService(t, db, newFakeClock())
	owner := seedUser(t, db, "owner@example.com")
	ctx := context.Background()

	meta, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "guarded", Passphrase: "open sesame"})
	require.NoError(t, err)
	require.True(t, meta.HasPassphrase)

	_, err = svc.AttemptView(ctx, meta.ID, "")
	require.ErrorIs(t, err, apperrors.ErrPassphraseRequired)

	_, err = svc.AttemptView(ctx, meta.ID, "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidPassphrase)

	current, err := svc.Get(ctx, meta.ID)
	require.NoError(t, err)
	require.Equal(t, models.SecretStateLive, current.State, "failed passphrase attempts leave the secret live")

	result, err := svc.AttemptView(ctx, meta.ID, "open sesame")
	require.NoError(t, err)
	require.Equal(t, "guarded", result.Message)
}

func TestSecretServiceExpiry(t *testing.T) {
	db := openServicesTestDB(t)
	clock := newFakeClock()
	svc, _ := newTestSecretService(t, db, clock)
	owner := seedUser(t, db, "owner@example.com")
	ctx := context.Background()

	meta, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "fleeting", TTL: MinSecretTTL})
	require.NoError(t, err)

	clock.Advance(MinSecretTTL)
	current, err := svc.Get(ctx, meta.ID)
	require.NoError(t, err)
	require.False(t, current.Expired, "expiry is strict")

	clock.Advance(time.Second)
	current, err = svc.Get(ctx, meta.ID)
	require.NoError(t, err)
	require.True(t, current.Expired)

	_, err = svc.AttemptView(ctx, meta.ID, "")
	require.ErrorIs(t, err, apperrors.ErrSecretExpired)

	_, err = svc.AttemptView(ctx, meta.ID, "")
	require.ErrorIs(t, err, apperrors.ErrSecretConsumed)

	current, err = svc.Get(ctx, meta.ID)
	require.NoError(t, err)
	require.Equal(t, models.SecretStateDestroyed, current.State)
}

func TestSecretServiceExpiryBeatsPassphrase(t *testing.T) {
	db := openServicesTestDB(t)
	clock := newFakeClock()
	svc, _ := newTestSecretService(t, db, clock)
	owner := seedUser(t, db, "owner@example.com")

	meta, err := svc.Create(context.Background(), CreateSecretInput{
		OwnerID: owner.ID, Message: "m", Passphrase: "p", TTL: MinSecretTTL,
	})
	require.NoError(t, err)

	clock.Advance(2 * MinSecretTTL)
	_, err = svc.AttemptView(context.Background(), meta.ID, "")
	require.ErrorIs(t, err, apperrors.ErrSecretExpired)
}

func TestSecretServiceCorruptCiphertext(t *testing.T) {
	db := openServicesTestDB(t)
	svc, audit := newTestSecretService(t, db, newFakeClock())
	owner := seedUser(t, db, "owner@example.com")
	ctx := context.Background()

	meta, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "fragile"})
	require.NoError(t, err)

	var stored models.Secret
	require.NoError(t, db.Take(&stored, "id = ?", meta.ID).Error)
	tampered := append([]byte(nil), stored.Ciphertext...)
	tampered[len(tampered)-1] ^= 0xFF
	require.NoError(t, db.Model(&models.Secret{}).Where("id = ?", meta.ID).UpdateColumn("ciphertext", tampered).Error)

	_, err = svc.AttemptView(ctx, meta.ID, "")
	require.ErrorIs(t, err, apperrors.ErrSecretCorrupt)

	current, err := svc.Get(ctx, meta.ID)
	require.NoError(t, err)
	require.Equal(t, models.SecretStateLive, current.State)

	var corruptEvents int64
	require.NoError(t, db.Model(&models.AuditLog{}).Where("action = ?", AuditSecretCorrupt).Count(&corruptEvents).Error)
	require.EqualValues(t, 1, corruptEvents)
	require.NotNil(t, audit)
}

func TestSecretServiceNotFound(t *testing.T) {
	db := openServicesTestDB(t)
	svc, _ := newTestSecretService(t, db, newFakeClock())
	ctx := context.Background()

	_, err := svc.AttemptView(ctx, "not-a-uuid", "")
	require.ErrorIs(t, err, apperrors.ErrSecretNotFound)

	_, err = svc.AttemptView(ctx, "7d0c6c2e-3f2a-4d6b-9d4e-2b1f5c9a8e11", "")
	require.ErrorIs(t, err, apperrors.ErrSecretNotFound)

	_, err = svc.Get(ctx, "")
	require.ErrorIs(t, err, apperrors.ErrSecretNotFound)
}

func TestSecretServiceDestroy(t *testing.T) {
	db := openServicesTestDB(t)
	svc, _ := newTestSecretService(t, db, newFakeClock())
	owner := seedUser(t, db, "owner@example.com")
	stranger := seedUser(t, db, "stranger@example.com")
	ctx := context.Background()

	meta, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "burn me"})
	require.NoError(t, err)

	require.ErrorIs(t, svc.Destroy(ctx, meta.ID, stranger.ID), apperrors.ErrSecretForbidden)
	require.ErrorIs(t, svc.Destroy(ctx, "9a1f7c7e-0000-4000-8000-000000000000", owner.ID), apperrors.ErrSecretNotFound)

	require.NoError(t, svc.Destroy(ctx, meta.ID, owner.ID))
	require.NoError(t, svc.Destroy(ctx, meta.ID, owner.ID), "destroy is idempotent")

	_, err = svc.AttemptView(ctx, meta.ID, "")
	require.ErrorIs(t, err, apperrors.ErrSecretConsumed)

	viewed, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "read first"})
	require.NoError(t, err)
	_, err = svc.AttemptView(ctx, viewed.ID, "")
	require.NoError(t, err)
	require.NoError(t, svc.Destroy(ctx, viewed.ID, owner.ID))

	current, err := svc.Get(ctx, viewed.ID)
	require.NoError(t, err)
	require.Equal(t, models.SecretStateViewed, current.State, "a viewed secret stays viewed")
}

func TestSecretServiceListByOwner(t *testing.T) {
	db := openServicesTestDB(t)
	clock := newFakeClock()
	svc, _ := newTestSecretService(t, db, clock)
	owner := seedUser(t, db, "owner@example.com")
	other := seedUser(t, db, "other@example.com")
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "one"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "two", Passphrase: "pw"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateSecretInput{OwnerID: other.ID, Message: "three"})
	require.NoError(t, err)

	list, err := svc.ListByOwner(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	empty, err := svc.ListByOwner(ctx, "11111111-1111-4111-8111-111111111111")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestSecretServiceRedactExpired(t *testing.T) {
	db := openServicesTestDB(t)
	clock := newFakeClock()
	svc, _ := newTestSecretService(t, db, clock)
	owner := seedUser(t, db, "owner@example.com")
	ctx := context.Background()

	short, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "short", TTL: MinSecretTTL})
	require.NoError(t, err)
	long, err := svc.Create(ctx, CreateSecretInput{OwnerID: owner.ID, Message: "long", TTL: time.Hour})
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	redacted, err := svc.RedactExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, redacted)

	var stored models.Secret
	require.NoError(t, db.Take(&stored, "id = ?", short.ID).Error)
	require.Empty(t, stored.EncryptionKey)
	require.NotNil(t, stored.RedactedAt)
	require.False(t, stored.IsDestroyed)

	_, err = svc.AttemptView(ctx, short.ID, "")
	require.ErrorIs(t, err, apperrors.ErrSecretExpired)

	result, err := svc.AttemptView(ctx, long.ID, "")
	require.NoError(t, err)
	require.Equal(t, "long", result.Message)

	again, err := svc.RedactExpired(ctx)
	require.NoError(t, err)
	require.Zero(t, again)
}

func TestWithDefaultSecretTTLIgnoresOutOfRange(t *testing.T) {
	db := openServicesTestDB(t)
	custom, err := NewSecretService(db, newBoxForTest(t), nil, WithDefaultSecretTTL(time.Hour))
	require.NoError(t, err)
	require.Equal(t, time.Hour, custom.DefaultTTL())

	svc, err := NewSecretService(db, newBoxForTest(t), nil, WithDefaultSecretTTL(time.Second))
	require.NoError(t, err)
	require.Equal(t, DefaultSecretTTL, svc.DefaultTTL())

	_, err = NewSecretService(nil, newBoxForTest(t), nil)
	require.Error(t, err)
	_, err = NewSecretService(db, nil, nil)
	require.Error(t, err)
}

func TestSecretMetadataPublicHidesTerminalState(t *testing.T) {
	now := time.Now().UTC()
	live := SecretMetadata{ID: "a", State: models.SecretStateLive, Expired: true}
	require.Equal(t, live, live.Public())

	viewed := SecretMetadata{ID: "b", State: models.SecretStateViewed, ViewedAt: &now}
	destroyed := SecretMetadata{ID: "b", State: models.SecretStateDestroyed, DestroyedAt: &now}

	require.Equal(t, models.SecretStateConsumed, viewed.Public().State)
	require.Nil(t, viewed.Public().ViewedAt)
	require.Equal(t, viewed.Public(), destroyed.Public())
	require.Equal(t, models.SecretStateViewed, viewed.State, "the receiver is left untouched")
}
