package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ravi-anand/chatwave-api/pkg/apperrors"
)

// TokenManager mints and verifies the access/refresh token pair. Access
// tokens prove identity on every request; refresh tokens exist solely to
// mint new access tokens and each user has exactly one valid refresh token
// at a time (rotation overwrites it).
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewTokenManager builds a TokenManager from the configured secrets and TTLs.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

// TokenPair bundles the credentials returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// MintPair issues a fresh access and refresh token for the given user. Both
// tokens carry a unique jti so that two mints within the same second still
// produce distinct credentials; without it, rotation could hand back a token
// byte-identical to the one it supersedes.
func (m *TokenManager) MintPair(userID uint, email string) (TokenPair, error) {
	now := time.Now()

	access := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   fmt.Sprintf("%d", userID),
		"email": email,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   now.Add(m.accessTTL).Unix(),
	})
	accessToken, err := access.SignedString(m.accessSecret)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "failed to sign access token", err)
	}

	refresh := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": fmt.Sprintf("%d", userID),
		"jti": uuid.NewString(),
		"iat": now.Unix(),
		"exp": now.Add(m.refreshTTL).Unix(),
	})
	refreshToken, err := refresh.SignedString(m.refreshSecret)
	if err != nil {
		return TokenPair{}, apperrors.Wrap(apperrors.CodeInternal, "failed to sign refresh token", err)
	}

	return TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// VerifyAccess validates an access token and returns the user id it encodes.
func (m *TokenManager) VerifyAccess(token string) (uint, error) {
	return verify(token, m.accessSecret)
}

// VerifyRefresh validates a refresh token and returns the user id it encodes.
func (m *TokenManager) VerifyRefresh(token string) (uint, error) {
	return verify(token, m.refreshSecret)
}

func verify(tokenString string, secret []byte) (uint, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil || !token.Valid {
		return 0, apperrors.Unauthenticated("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, apperrors.Unauthenticated("invalid token claims")
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return 0, apperrors.Unauthenticated("token subject missing")
	}

	var userID uint
	if _, err := fmt.Sscanf(subject, "%d", &userID); err != nil || userID == 0 {
		return 0, apperrors.Unauthenticated("invalid token subject")
	}

	return userID, nil
}
