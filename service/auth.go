package service

import (
	"context"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/zlnvch/deskfolio/log"
	"github.com/zlnvch/deskfolio/models"
	"github.com/zlnvch/deskfolio/store"
)

const minPasswordLength = 8

type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

type Claims struct {
	SubjectId string    `json:"id"`
	Type      TokenType `json:"type"`
	Email     string    `json:"email"`
	jwt.RegisteredClaims
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// Subject is the caller identity resolved from a request.
type Subject struct {
	Id    string
	Email string
}

var GuestSubject = Subject{Id: models.GuestUserId}

func (s Subject) IsGuest() bool {
	return s.Id == "" || s.Id == models.GuestUserId
}

func (s *Service) signToken(subjectId, email string, tokenType TokenType, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		SubjectId: subjectId,
		Type:      tokenType,
		Email:     email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.JWT.Issuer,
			Audience:  jwt.ClaimStrings{s.JWT.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.JWT.Secret)
}

func (s *Service) IssueTokens(subjectId, email string) (TokenPair, error) {
	if len(s.JWT.Secret) == 0 {
		return TokenPair{}, ErrSecretNotConfigured
	}

	accessToken, err := s.signToken(subjectId, email, AccessToken, s.JWT.AccessTTL)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "sign access token")
	}
	refreshToken, err := s.signToken(subjectId, email, RefreshToken, s.JWT.RefreshTTL)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "sign refresh token")
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyToken checks signature, issuer, audience, expiry and token type.
// Every failure satisfies errors.Is(err, ErrInvalidToken).
func (s *Service) VerifyToken(tokenString string, expected TokenType) (*Claims, error) {
	err := func() error {
		if tokenString == "" {
			return ErrTokenMissing
		}
		if len(s.JWT.Secret) == 0 {
			return ErrSecretNotConfigured
		}
		return nil
	}()
	if err != nil {
		log.Logger.Debug("token rejected", zap.Error(err))
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.JWT.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.JWT.Issuer),
		jwt.WithAudience(s.JWT.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		log.Logger.Debug("token rejected", zap.Error(err))
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}

	if claims.Type != expected {
		log.Logger.Debug("token rejected", zap.String("type", string(claims.Type)))
		return nil, ErrTokenWrongType
	}

	return claims, nil
}

// Authenticate resolves the subject of an access token for required-auth
// operations.
func (s *Service) Authenticate(tokenString string) (Subject, error) {
	claims, err := s.VerifyToken(tokenString, AccessToken)
	if err != nil {
		return Subject{}, err
	}
	return Subject{Id: claims.SubjectId, Email: claims.Email}, nil
}

// OptionalSubject never fails: any token problem yields GuestSubject.
func (s *Service) OptionalSubject(tokenString string) Subject {
	if tokenString == "" {
		return GuestSubject
	}
	subject, err := s.Authenticate(tokenString)
	if err != nil || subject.Id == "" {
		return GuestSubject
	}
	return subject
}

func (s *Service) Login(ctx context.Context, email, password string) (models.User, TokenPair, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return models.User{}, TokenPair{}, newError(ErrValidation, "Email and password are required")
	}
	if len(password) < minPasswordLength {
		return models.User{}, TokenPair{}, newError(ErrValidation, "Password must be at least 8 characters")
	}
	if err := s.requireStore(); err != nil {
		return models.User{}, TokenPair{}, err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.Store.GetUserByEmail(storeCtx, email)
	if err != nil {
		if errors.Is(err, store.ErrItemNotFound) {
			return models.User{}, TokenPair{}, newError(ErrInvalidCredentials, "Invalid credentials")
		}
		return models.User{}, TokenPair{}, errors.Wrap(err, "look up user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.User{}, TokenPair{}, newError(ErrInvalidCredentials, "Invalid credentials")
	}

	tokens, err := s.IssueTokens(user.Id, user.Email)
	if err != nil {
		if errors.Is(err, ErrSecretNotConfigured) {
			log.Logger.Error("JWT_SECRET is not set")
			return models.User{}, TokenPair{}, newError(ErrNotConfigured, "Server configuration error")
		}
		return models.User{}, TokenPair{}, err
	}

	log.Logger.Info("user logged in", zap.String("userId", user.Id))
	return user, tokens, nil
}

// CreateUser hashes password and stores a new user. Used by the CLI.
func (s *Service) CreateUser(ctx context.Context, email, password, name string) (models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return models.User{}, newError(ErrValidation, "email is required")
	}
	if len(password) < minPasswordLength {
		return models.User{}, newError(ErrValidation, "Password must be at least 8 characters")
	}
	if err := s.requireStore(); err != nil {
		return models.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.User{}, errors.Wrap(err, "hash password")
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.Store.CreateUser(storeCtx, models.User{
		Email:        email,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(name),
	})
	if err != nil {
		if errors.Is(err, store.ErrConditionFailed) {
			return models.User{}, newError(ErrValidation, "user already exists")
		}
		return models.User{}, errors.Wrapf(err, "create user %q", email)
	}
	return user, nil
}
