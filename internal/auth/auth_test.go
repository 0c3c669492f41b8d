package auth

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonewallbooks/storefront/internal/docstore"
	"github.com/stonewallbooks/storefront/internal/domain"
	domainerrors "github.com/stonewallbooks/storefront/internal/errors"
)

// testHasher keeps argon2 cheap in tests.
var testHasher = PasswordHasher{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func randomKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, keyLength)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func setupTestAuthority(t *testing.T) *Authority {
	t.Helper()
	backend, err := docstore.OpenBadgerInMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	tokens, err := NewTokenService(randomKey(t), time.Hour, 24*time.Hour)
	require.NoError(t, err)

	return NewAuthority(NewAccountStore(backend), tokens, testHasher, nil)
}

func TestPasswordHasher_HashAndVerify(t *testing.T) {
	hash, err := testHasher.Hash("correct horse")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$")

	assert.True(t, testHasher.Verify(hash, "correct horse"))
	assert.False(t, testHasher.Verify(hash, "wrong horse"))
	assert.True(t, DefaultHasher.Verify(hash, "correct horse"), "parameters come from the hash")
	assert.False(t, testHasher.Verify("garbage", "correct horse"))
}

func TestPasswordHasher_RejectsBadInput(t *testing.T) {
	_, err := testHasher.Hash("")
	assert.Error(t, err)

	_, err = testHasher.Hash(string(make([]byte, maxPasswordLength+1)))
	assert.Error(t, err)
}

func TestLoadOrGenerateKey(t *testing.T) {
	dir := t.TempDir()

	key, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Len(t, key, keyLength)

	again, err := LoadOrGenerateKey(dir)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	require.NoError(t, os.WriteFile(filepath.Join(dir, KeyFileName), []byte("abcd"), 0o600))
	_, err = LoadOrGenerateKey(dir)
	assert.Error(t, err)
}

func TestTokenService_IssueAndVerify(t *testing.T) {
	tokens, err := NewTokenService(randomKey(t), time.Hour, 24*time.Hour)
	require.NoError(t, err)

	token, expires, err := tokens.Issue(domain.Identity{UID: "acct-1", Email: "a@x.com"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	claims, err := tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, &domain.Identity{UID: "acct-1", Email: "a@x.com"}, claims.Identity())
	assert.Equal(t, "acct-1", claims.Subject)

	anonToken, anonExpires, err := tokens.Issue(domain.Identity{UID: "anon-1", IsAnonymous: true})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), anonExpires, time.Minute)

	anonClaims, err := tokens.Verify(anonToken)
	require.NoError(t, err)
	assert.True(t, anonClaims.IsAnonymous)
	assert.Empty(t, anonClaims.Email)
}

func TestTokenService_RejectsForeignAndExpiredTokens(t *testing.T) {
	issuer, err := NewTokenService(randomKey(t), time.Hour, time.Hour)
	require.NoError(t, err)
	other, err := NewTokenService(randomKey(t), time.Hour, time.Hour)
	require.NoError(t, err)

	token, _, err := issuer.Issue(domain.Identity{UID: "acct-1"})
	require.NoError(t, err)

	_, err = other.Verify(token)
	assert.Error(t, err)

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, _, err := issuer.Issue(domain.Identity{UID: "acct-1"})
	require.NoError(t, err)
	issuer.now = time.Now

	_, err = issuer.Verify(stale)
	assert.Error(t, err)
}

func TestNewTokenService_KeyLength(t *testing.T) {
	_, err := NewTokenService([]byte("short"), time.Hour, time.Hour)
	assert.Error(t, err)
}

func TestAuthority_AccountLifecycle(t *testing.T) {
	authority := setupTestAuthority(t)
	ctx := context.Background()

	acct, err := authority.CreateAccount(ctx, "Librarian@Example.com ", "shelves-and-stacks")
	require.NoError(t, err)
	assert.Equal(t, "Librarian@Example.com", acct.Email)

	_, err = authority.CreateAccount(ctx, "librarian@example.com", "another")
	assert.ErrorIs(t, err, domainerrors.ErrConflict)

	session, err := authority.SignIn(ctx, "librarian@example.com", "shelves-and-stacks")
	require.NoError(t, err)
	assert.False(t, session.Identity.IsAnonymous)
	assert.Equal(t, acct.ID, session.Identity.UID)

	identity, err := authority.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "Librarian@Example.com", identity.Email)
}

func TestAuthority_SignInFailures(t *testing.T) {
	authority := setupTestAuthority(t)
	ctx := context.Background()

	_, err := authority.CreateAccount(ctx, "a@x.com", "right-password")
	require.NoError(t, err)

	_, err = authority.SignIn(ctx, "a@x.com", "wrong-password")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = authority.SignIn(ctx, "nobody@x.com", "right-password")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidCredentials)

	_, err = authority.Verify("v4.local.not-a-token")
	assert.ErrorIs(t, err, domainerrors.ErrUnauthorized)
}

func TestAuthority_SignInAnonymous(t *testing.T) {
	authority := setupTestAuthority(t)

	first, err := authority.SignInAnonymous(context.Background())
	require.NoError(t, err)
	second, err := authority.SignInAnonymous(context.Background())
	require.NoError(t, err)

	assert.True(t, first.Identity.IsAnonymous)
	assert.NotEqual(t, first.Identity.UID, second.Identity.UID)

	identity, err := authority.Verify(first.Token)
	require.NoError(t, err)
	assert.True(t, identity.IsAnonymous)
}
