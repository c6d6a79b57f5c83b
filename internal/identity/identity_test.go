package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-secret"

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer   abc  ", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		assert.Equal(t, tt.ok, ok, tt.header)
		assert.Equal(t, tt.want, got, tt.header)
	}
}

func TestJWTVerifier_RoundTrip(t *testing.T) {
	v := NewJWTVerifier(testSecret, "safepaw")
	token, err := v.Issue("owner-1", "ana@example.com", "Ana", time.Hour)
	require.NoError(t, err)

	p, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "owner-1", p.UID)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.Equal(t, "Ana", p.Name)
}

func TestJWTVerifier_Rejects(t *testing.T) {
	v := NewJWTVerifier(testSecret, "safepaw")
	ctx := context.Background()

	expired, err := v.Issue("owner-1", "", "", -time.Minute)
	require.NoError(t, err)

	otherIssuer, err := NewJWTVerifier(testSecret, "someone-else").Issue("owner-1", "", "", time.Hour)
	require.NoError(t, err)

	wrongKey, err := NewJWTVerifier("another-secret-value!", "safepaw").Issue("owner-1", "", "", time.Hour)
	require.NoError(t, err)

	noSubject, err := v.Issue("", "", "", time.Hour)
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "owner-1", Issuer: "safepaw"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"expired":      expired,
		"issuer":       otherIssuer,
		"wrong key":    wrongKey,
		"no subject":   noSubject,
		"other method": hs512,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

type mockIDTokens struct {
	mock.Mock
}

func (m *mockIDTokens) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	args := m.Called(ctx, idToken)
	if tok := args.Get(0); tok != nil {
		return tok.(*auth.Token), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestFirebaseVerifier(t *testing.T) {
	ctx := context.Background()
	tokens := new(mockIDTokens)
	v := &FirebaseVerifier{client: tokens}

	tokens.On("VerifyIDToken", ctx, "good").Return(&auth.Token{
		UID:    "care-1",
		Claims: map[string]interface{}{"email": "luz@example.com", "name": "Luz"},
	}, nil).Once()
	tokens.On("VerifyIDToken", ctx, "bad").Return(nil, errors.New("ID token has expired")).Once()

	p, err := v.Verify(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "care-1", p.UID)
	assert.Equal(t, "luz@example.com", p.Email)
	assert.Equal(t, "Luz", p.Name)

	_, err = v.Verify(ctx, "bad")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Verify(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidToken)

	tokens.AssertExpectations(t)
}
