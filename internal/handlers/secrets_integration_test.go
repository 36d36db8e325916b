package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/burnnote/internal/handlers/testutil"
	"github.com/charlesng35/burnnote/internal/models"
)

func TestSecretCreateAndViewOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.LoginAs("owner@example.com")

	secret := env.CreateSecret(token, map[string]any{
		"message":               "launch codes: 0000",
		"ttl_minutes":           30,
		"destruction_animation": "Fire",
	})
	require.Equal(t, "live", secret.State)
	require.False(t, secret.HasPassphrase)
	require.Equal(t, "fire", secret.DestructionAnimation)
	require.WithinDuration(t, secret.CreatedAt.Add(30*time.Minute), secret.ExpiresAt, 2*time.Second)

	var stored models.Secret
	require.NoError(t, env.DB.Take(&stored, "id = ?", secret.ID).Error)
	require.NotContains(t, string(stored.Ciphertext), "launch codes")

	// metadata lookups never consume
	for i := 0; i < 2; i++ {
		w := env.Request(http.MethodGet, "/api/secrets/"+secret.ID, nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NotContains(t, w.Body.String(), "launch codes")
	}

	w := env.Request(http.MethodPost, "/api/secrets/"+secret.ID+"/view", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view testutil.ViewPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &view)
	require.Equal(t, "launch codes: 0000", view.Message)
	require.Equal(t, "consumed", view.Metadata.State)
	require.Nil(t, view.Metadata.ViewedAt)

	w = env.Request(http.MethodPost, "/api/secrets/"+secret.ID+"/view", nil, "")
	testutil.RequireError(t, w, http.StatusGone, "secret.consumed")

	w = env.Request(http.MethodGet, "/api/secrets/"+secret.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var meta testutil.SecretPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &meta)
	require.Equal(t, "consumed", meta.State)
	require.Nil(t, meta.ViewedAt)

	require.NoError(t, env.DB.Take(&stored, "id = ?", secret.ID).Error)
	require.Empty(t, stored.Ciphertext)
	require.Empty(t, stored.EncryptionKey)
	require.NotNil(t, stored.RedactedAt)
}

func TestSecretConcurrentViewsRevealOnce(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.LoginAs("racer@example.com")
	secret := env.CreateSecret(token, map[string]any{"message": "only once"})

	const viewers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		codes []int
	)
	for i := 0; i < viewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.Secrets.AttemptView(context.Background(), secret.ID, "")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				codes = append(codes, http.StatusOK)
			} else {
				codes = append(codes, http.StatusGone)
			}
		}()
	}
	wg.Wait()

	revealed := 0
	for _, code := range codes {
		if code == http.StatusOK {
			revealed++
		}
	}
	require.Equal(t, 1, revealed)
}

func TestSecretPassphrase(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.LoginAs("guarded@example.com")
	secret := env.CreateSecret(token, map[string]any{"message": "behind a door", "passphrase": "open sesame"})
	require.True(t, secret.HasPassphrase)

	w := env.Request(http.MethodPost, "/api/secrets/"+secret.ID+"/view", nil, "")
	testutil.RequireError(t, w, http.StatusUnauthorized, "secret.passphrase_required")

	w = env.Request(http.MethodPost, "/api/secrets/"+secret.ID+"/view", map[string]string{"passphrase": "wrong"}, "")
	testutil.RequireError(t, w, http.StatusUnauthorized, "secret.passphrase_invalid")

	// failed attempts leave the secret live
	w = env.Request(http.MethodPost, "/api/secrets/"+secret.ID+"/view", map[string]string{"passphrase": "open sesame"}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var view testutil.ViewPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &view)
	require.Equal(t, "behind a door", view.Message)
}

func TestSecretCreateValidation(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.LoginAs("validator@example.com")

	cases := []struct {
		name string
		body map[string]any
		code string
	}{
		{name: "empty message", body: map[string]any{"message": "   "}, code: "secret.empty_message"},
		{name: "zero ttl", body: map[string]any{"message": "x", "ttl_minutes": 0}, code: "secret.invalid_ttl"},
		{name: "ttl beyond a week", body: map[string]any{"message": "x", "ttl_minutes": 20000}, code: "secret.invalid_ttl"},
		{name: "ttl one minute past a week", body: map[string]any{"message": "x", "ttl_minutes": 7*24*60 + 1}, code: "secret.invalid_ttl"},
		{name: "ttl that wraps a duration", body: map[string]any{"message": "x", "ttl_minutes": 307445736}, code: "secret.invalid_ttl"},
		{name: "ttl near int64 max", body: map[string]any{"message": "x", "ttl_minutes": int64(1) << 62}, code: "secret.invalid_ttl"},
		{name: "unknown animation", body: map[string]any{"message": "x", "destruction_animation": "confetti"}, code: "secret.invalid_animation"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.Request(http.MethodPost, "/api/secrets", tc.body, token)
			testutil.RequireError(t, w, http.StatusBadRequest, tc.code)
		})
	}

	w := env.Request(http.MethodPost, "/api/secrets", map[string]any{"message": "x"}, "")
	testutil.RequireError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")

	var count int64
	require.NoError(t, env.DB.Model(&models.Secret{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestSecretDefaultTTL(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.LoginAs("defaults@example.com")

	secret := env.CreateSecret(token, map[string]any{"message": "x"})
	require.Equal(t, "none", secret.DestructionAnimation)
	require.WithinDuration(t, secret.CreatedAt.Add(env.Secrets.DefaultTTL()), secret.ExpiresAt, 2*time.Second)
}

func TestSecretListAndDestroy(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.LoginAs("keeper@example.com")
	stranger := env.LoginAs("stranger@example.com")

	first := env.CreateSecret(owner, map[string]any{"message": "one"})
	second := env.CreateSecret(owner, map[string]any{"message": "two"})
	env.CreateSecret(stranger, map[string]any{"message": "not yours"})

	w := env.Request(http.MethodGet, "/api/secrets", nil, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := testutil.DecodeResponse(t, w)
	var listed []testutil.SecretPayload
	testutil.DecodeInto(t, resp.Data, &listed)
	require.Len(t, listed, 2)
	require.Equal(t, 2, resp.Meta.Total)

	w = env.Request(http.MethodDelete, "/api/secrets/"+first.ID, nil, stranger)
	testutil.RequireError(t, w, http.StatusForbidden, "secret.forbidden")

	w = env.Request(http.MethodDelete, "/api/secrets/"+first.ID, nil, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"destroyed":true`)

	w = env.Request(http.MethodPost, "/api/secrets/"+first.ID+"/view", nil, "")
	testutil.RequireError(t, w, http.StatusGone, "secret.consumed")

	w = env.Request(http.MethodPost, "/api/secrets/"+second.ID+"/destroy", nil, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// destroying twice is a no-op
	w = env.Request(http.MethodPost, "/api/secrets/"+second.ID+"/destroy", nil, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/api/secrets/"+second.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var meta testutil.SecretPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &meta)
	require.Equal(t, "consumed", meta.State)
	require.Nil(t, meta.DestroyedAt)
}

func TestSecretTerminalStatesLookAlikeToVisitors(t *testing.T) {
	env := testutil.NewEnv(t)
	owner := env.LoginAs("sender@example.com")

	read := env.CreateSecret(owner, map[string]any{"message": "read me"})
	burned := env.CreateSecret(owner, map[string]any{"message": "burn me"})

	w := env.Request(http.MethodPost, "/api/secrets/"+read.ID+"/view", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = env.Request(http.MethodDelete, "/api/secrets/"+burned.ID, nil, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	bodies := make([]map[string]any, 0, 2)
	for _, id := range []string{read.ID, burned.ID} {
		w = env.Request(http.MethodGet, "/api/secrets/"+id, nil, "")
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.NotContains(t, w.Body.String(), "viewed")
		require.NotContains(t, w.Body.String(), "destroyed")

		var fields map[string]any
		testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &fields)
		require.Equal(t, "consumed", fields["state"])
		delete(fields, "id")
		delete(fields, "created_at")
		delete(fields, "expires_at")
		bodies = append(bodies, fields)

		w = env.Request(http.MethodPost, "/api/secrets/"+id+"/view", nil, "")
		testutil.RequireError(t, w, http.StatusGone, "secret.consumed")
	}
	require.Equal(t, bodies[0], bodies[1])

	// the owner still sees what happened
	w = env.Request(http.MethodGet, "/api/secrets", nil, owner)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var listed []testutil.SecretPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &listed)
	states := map[string]string{}
	for _, item := range listed {
		states[item.ID] = item.State
	}
	require.Equal(t, "viewed", states[read.ID])
	require.Equal(t, "destroyed", states[burned.ID])
}

func TestSecretViewAcceptsEmptyChunkedBody(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.LoginAs("chunked@example.com")
	secret := env.CreateSecret(token, map[string]any{"message": "no passphrase"})

	req := httptest.NewRequest(http.MethodPost, "/api/secrets/"+secret.ID+"/view", strings.NewReader(""))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.Router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var view testutil.ViewPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &view)
	require.Equal(t, "no passphrase", view.Message)
}

func TestSecretUnknownIDs(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.LoginAs("seeker@example.com")

	for _, id := range []string{"not-a-uuid", "0b6f1f9e-3c1a-4d8e-9a47-6f1d2c9b7e10"} {
		w := env.Request(http.MethodGet, "/api/secrets/"+id, nil, "")
		testutil.RequireError(t, w, http.StatusNotFound, "secret.not_found")

		w = env.Request(http.MethodPost, "/api/secrets/"+id+"/view", nil, "")
		testutil.RequireError(t, w, http.StatusNotFound, "secret.not_found")

		w = env.Request(http.MethodDelete, "/api/secrets/"+id, nil, token)
		testutil.RequireError(t, w, http.StatusNotFound, "secret.not_found")
	}
}

func TestSecretExpiredViewDestroys(t *testing.T) {
	env := testutil.NewEnv(t)
	token := env.LoginAs("late@example.com")
	secret := env.CreateSecret(token, map[string]any{"message": "too late", "ttl_minutes": 1})

	require.NoError(t, env.DB.Model(&models.Secret{}).
		Where("id = ?", secret.ID).
		UpdateColumn("expires_at", time.Now().UTC().Add(-time.Second)).Error)

	w := env.Request(http.MethodGet, "/api/secrets/"+secret.ID, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var meta testutil.SecretPayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &meta)
	require.True(t, meta.Expired)
	require.Equal(t, "live", meta.State)

	w = env.Request(http.MethodPost, "/api/secrets/"+secret.ID+"/view", nil, "")
	testutil.RequireError(t, w, http.StatusGone, "secret.expired")

	w = env.Request(http.MethodPost, "/api/secrets/"+secret.ID+"/view", nil, "")
	testutil.RequireError(t, w, http.StatusGone, "secret.consumed")

	var stored models.Secret
	require.NoError(t, env.DB.Take(&stored, "id = ?", secret.ID).Error)
	require.True(t, stored.IsDestroyed)
	require.Empty(t, stored.Ciphertext)
}

func TestSecretViewIsRateLimited(t *testing.T) {
	env := testutil.NewEnv(t, testutil.WithSensitiveLimit(3))
	token := env.LoginAs("limited@example.com")
	secret := env.CreateSecret(token, map[string]any{"message": "x", "passphrase": "right"})

	for i := 0; i < 3; i++ {
		w := env.Request(http.MethodPost, "/api/secrets/"+secret.ID+"/view", map[string]string{"passphrase": "guess"}, "")
		testutil.RequireError(t, w, http.StatusUnauthorized, "secret.passphrase_invalid")
	}

	w := env.Request(http.MethodPost, "/api/secrets/"+secret.ID+"/view", map[string]string{"passphrase": "right"}, "")
	testutil.RequireError(t, w, http.StatusTooManyRequests, "RATE_LIMIT_EXCEEDED")
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Jobs.Record("secret_redaction", "success", "", 40*time.Millisecond)

	w := env.Request(http.MethodGet, "/health", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/health/ready", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Contains(t, w.Body.String(), `"jobs"`)
	require.Contains(t, w.Body.String(), "secret_redaction")

	w = env.Request(http.MethodGet, "/api/health/live", nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.Request(http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = env.Request(http.MethodGet, "/api/unknown", nil, "")
	require.Equal(t, http.StatusNotFound, w.Code)
}
