package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/alagamento-br/apiserver/types"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

var issuedAt = time.Date(2025, time.March, 12, 14, 0, 0, 0, time.UTC)

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

func newTestTokenService(t *testing.T) (*TokenService, fakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(issuedAt)
	svc, err := NewTokenService(testSecret, clock)
	require.NoError(t, err)
	return svc, clock
}

func testUser() types.User {
	return types.User{ID: 42, Name: "Maria Souza", Email: "maria@example.com", Role: types.RoleUser}
}

func TestNewTokenService_RequiresSecret(t *testing.T) {
	_, err := NewTokenService("   ", nil)
	require.Error(t, err)
}

func TestVerify_RoundTrip(t *testing.T) {
	for _, role := range []types.Role{types.RoleUser, types.RoleAdmin} {
		t.Run(string(role), func(t *testing.T) {
			svc, clock := newTestTokenService(t)
			user := testUser()
			user.Role = role

			token, err := svc.Issue(user)
			require.NoError(t, err)

			clock.Advance(TokenTTL - time.Second)
			principal, err := svc.Verify(token)
			require.NoError(t, err)

			assert.Equal(t, user.ID, principal.SubjectID)
			assert.Equal(t, user.Name, principal.Name)
			assert.Equal(t, user.Email, principal.Email)
			assert.Equal(t, role, principal.Role)
			assert.True(t, principal.ExpiresAt.Equal(issuedAt.Add(TokenTTL)))
			assert.Equal(t, role == types.RoleAdmin, principal.IsAdmin())
		})
	}
}

func TestVerify_RejectsAtExpiry(t *testing.T) {
	svc, clock := newTestTokenService(t)
	token, err := svc.Issue(testUser())
	require.NoError(t, err)

	clock.Advance(TokenTTL)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsAfterExpiry(t *testing.T) {
	svc, clock := newTestTokenService(t)
	token, err := svc.Issue(testUser())
	require.NoError(t, err)

	clock.Advance(2 * TokenTTL)
	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsForeignSecret(t *testing.T) {
	svc, _ := newTestTokenService(t)
	other, err := NewTokenService("another-secret", clockwork.NewFakeClockAt(issuedAt))
	require.NoError(t, err)

	token, err := other.Issue(testUser())
	require.NoError(t, err)

	_, err = svc.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsTamperedPayload(t *testing.T) {
	svc, _ := newTestTokenService(t)
	token, err := svc.Issue(testUser())
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(types.RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(TokenTTL)),
		},
	})
	forgedToken, err := forged.SignedString([]byte("guess"))
	require.NoError(t, err)
	forgedParts := strings.Split(forgedToken, ".")

	_, err = svc.Verify(parts[0] + "." + forgedParts[1] + "." + parts[2])
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsMalformed(t *testing.T) {
	svc, _ := newTestTokenService(t)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		_, err := svc.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, token)
	}
}

func TestVerify_RejectsUnexpectedAlgorithm(t *testing.T) {
	svc, _ := newTestTokenService(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Role: string(types.RoleUser),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(TokenTTL)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = svc.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerify_RejectsBadClaims(t *testing.T) {
	svc, _ := newTestTokenService(t)
	exp := jwt.NewNumericDate(issuedAt.Add(TokenTTL))

	cases := map[string]Claims{
		"non numeric subject": {Role: "user", RegisteredClaims: jwt.RegisteredClaims{Subject: "maria", ExpiresAt: exp}},
		"unknown role":        {Role: "root", RegisteredClaims: jwt.RegisteredClaims{Subject: "42", ExpiresAt: exp}},
		"missing expiry":      {Role: "user", RegisteredClaims: jwt.RegisteredClaims{Subject: "42"}},
	}
	for name, claims := range cases {
		t.Run(name, func(t *testing.T) {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
			require.NoError(t, err)

			_, err = svc.Verify(signed)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}
