package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zlnvch/deskfolio/config"
	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/service"
	"github.com/zlnvch/deskfolio/store"
)

func TestIssueAndVerifyTokens(t *testing.T) {
	svc, _, _, _ := setupService(t)

	tokens, err := svc.IssueTokens("user1", "user1@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)

	claims, err := svc.VerifyToken(tokens.AccessToken, service.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user1", claims.SubjectId)
	assert.Equal(t, "user1@example.com", claims.Email)
	assert.Equal(t, "swiftserve", claims.Issuer)
	assert.Equal(t, fixedNow.Add(7*24*time.Hour).Unix(), claims.ExpiresAt.Unix())

	refresh, err := svc.VerifyToken(tokens.RefreshToken, service.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(30*24*time.Hour).Unix(), refresh.ExpiresAt.Unix())
}

func TestVerifyToken_Failures(t *testing.T) {
	svc, _, _, _ := setupService(t)
	tokens, err := svc.IssueTokens("user1", "user1@example.com")
	require.NoError(t, err)

	other := service.NewService(nil, nil, nil, config.JWTConfig{
		Secret:    []byte("other"),
		Issuer:    "swiftserve",
		Audience:  "swiftserve-users",
		AccessTTL: time.Hour,
	}, 0)
	otherTokens, err := other.IssueTokens("user1", "user1@example.com")
	require.NoError(t, err)

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"id": "user1", "type": "access"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	cases := []struct {
		name     string
		token    string
		expected service.TokenType
		want     error
	}{
		{"missing", "", service.AccessToken, service.ErrTokenMissing},
		{"garbage", "invalid.token.string", service.AccessToken, service.ErrTokenMalformed},
		{"wrong secret", otherTokens.AccessToken, service.AccessToken, service.ErrTokenMalformed},
		{"alg none", noneToken, service.AccessToken, service.ErrTokenMalformed},
		{"refresh used as access", tokens.RefreshToken, service.AccessToken, service.ErrTokenWrongType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.VerifyToken(tc.token, tc.expected)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, service.ErrInvalidToken)
		})
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	svc, _, _, _ := setupService(t)
	tokens, err := svc.IssueTokens("user1", "user1@example.com")
	require.NoError(t, err)

	svc.SetClock(func() time.Time { return fixedNow.Add(8 * 24 * time.Hour) })

	_, err = svc.VerifyToken(tokens.AccessToken, service.AccessToken)
	assert.ErrorIs(t, err, service.ErrTokenExpired)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestVerifyToken_WrongAudience(t *testing.T) {
	svc, _, _, _ := setupService(t)

	cfg := testJWTConfig()
	cfg.Audience = "someone-else"
	other := service.NewService(nil, nil, nil, cfg, 0)
	other.SetClock(func() time.Time { return fixedNow })
	tokens, err := other.IssueTokens("user1", "user1@example.com")
	require.NoError(t, err)

	_, err = svc.VerifyToken(tokens.AccessToken, service.AccessToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestIssueTokens_NoSecret(t *testing.T) {
	svc := service.NewService(nil, nil, nil, config.JWTConfig{}, 0)

	_, err := svc.IssueTokens("user1", "user1@example.com")
	assert.ErrorIs(t, err, service.ErrSecretNotConfigured)

	_, err = svc.VerifyToken("anything", service.AccessToken)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestOptionalSubject(t *testing.T) {
	svc, _, _, _ := setupService(t)
	tokens, err := svc.IssueTokens("user1", "user1@example.com")
	require.NoError(t, err)

	subject := svc.OptionalSubject(tokens.AccessToken)
	assert.Equal(t, "user1", subject.Id)
	assert.False(t, subject.IsGuest())

	assert.True(t, svc.OptionalSubject("").IsGuest())
	assert.True(t, svc.OptionalSubject("garbage").IsGuest())
	assert.True(t, svc.OptionalSubject(tokens.RefreshToken).IsGuest())
	assert.Equal(t, models.GuestUserId, svc.OptionalSubject("garbage").Id)
}

func TestLogin_Success(t *testing.T) {
	svc, mockStore, _, _ := setupService(t)
	ctx := context.Background()

	user := models.User{Id: "user1", Email: "ann@example.com", PasswordHash: hash(t, "password123"), Name: "Ann"}
	mockStore.On("GetUserByEmail", mock.Anything, "ann@example.com").Return(user, nil)

	gotUser, tokens, err := svc.Login(ctx, " ann@example.com ", "password123")
	require.NoError(t, err)
	assert.Equal(t, "user1", gotUser.Id)

	subject, err := svc.Authenticate(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, service.Subject{Id: "user1", Email: "ann@example.com"}, subject)
}

func TestLogin_Failures(t *testing.T) {
	cases := []struct {
		name     string
		email    string
		password string
		setup    func(m *mock.Mock)
		want     error
		message  string
	}{
		{"missing email", "", "password123", nil, service.ErrValidation, "Email and password are required"},
		{"missing password", "a@b.c", "", nil, service.ErrValidation, "Email and password are required"},
		{"short password", "a@b.c", "short", nil, service.ErrValidation, "Password must be at least 8 characters"},
		{"unknown user", "a@b.c", "password123", func(m *mock.Mock) {
			m.On("GetUserByEmail", mock.Anything, "a@b.c").Return(models.User{}, store.ErrItemNotFound)
		}, service.ErrInvalidCredentials, "Invalid credentials"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, mockStore, _, _ := setupService(t)
			if tc.setup != nil {
				tc.setup(&mockStore.Mock)
			}

			_, _, err := svc.Login(context.Background(), tc.email, tc.password)
			assert.ErrorIs(t, err, tc.want)

			var svcErr *service.Error
			require.ErrorAs(t, err, &svcErr)
			assert.Equal(t, tc.message, svcErr.Message)
		})
	}
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, mockStore, _, _ := setupService(t)

	user := models.User{Id: "user1", Email: "a@b.c", PasswordHash: hash(t, "password123")}
	mockStore.On("GetUserByEmail", mock.Anything, "a@b.c").Return(user, nil)

	_, _, err := svc.Login(context.Background(), "a@b.c", "password124")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestLogin_NoSecret(t *testing.T) {
	svc, mockStore, _, _ := setupService(t)
	svc.JWT.Secret = nil

	user := models.User{Id: "user1", Email: "a@b.c", PasswordHash: hash(t, "password123")}
	mockStore.On("GetUserByEmail", mock.Anything, "a@b.c").Return(user, nil)

	_, _, err := svc.Login(context.Background(), "a@b.c", "password123")
	assert.ErrorIs(t, err, service.ErrNotConfigured)

	var svcErr *service.Error
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "Server configuration error", svcErr.Message)
}

func TestCreateUser(t *testing.T) {
	svc, mockStore, _, _ := setupService(t)

	mockStore.On("CreateUser", mock.Anything, mock.MatchedBy(func(u models.User) bool {
		return u.Email == "ann@example.com" && u.Name == "Ann" && u.PasswordHash != "password123"
	})).Return(models.User{Id: "new", Email: "ann@example.com"}, nil).Once()
	mockStore.On("CreateUser", mock.Anything, mock.Anything).Return(models.User{}, store.ErrConditionFailed)

	user, err := svc.CreateUser(context.Background(), "Ann@Example.com", "password123", " Ann ")
	require.NoError(t, err)
	assert.Equal(t, "new", user.Id)

	_, err = svc.CreateUser(context.Background(), "ann@example.com", "password123", "Ann")
	assert.ErrorIs(t, err, service.ErrValidation)
}
