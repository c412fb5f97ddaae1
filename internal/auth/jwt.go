package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/jptaranto/zone-bridge/internal/config"
)

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const (
	tokenIssuer   = "zone-bridge"
	tokenAudience = "zone-bridge-client"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenType    = errors.New("token has invalid type")
)

// TokenPair is handed to a device when pairing completes.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresInSec int
}

type deviceClaims struct {
	DeviceName string    `json:"device_name"`
	Type       TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 device tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer builds an issuer from the JWT settings in cfg.
func NewIssuer(cfg config.Config) *Issuer {
	return &Issuer{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  time.Duration(cfg.JWTAccessTokenExpirySec) * time.Second,
		refreshTTL: time.Duration(cfg.JWTRefreshTokenExpirySec) * time.Second,
		now:        time.Now,
	}
}

// IssuePair mints an access and a refresh token for a paired device.
func (issuer *Issuer) IssuePair(device Device) (TokenPair, error) {
	access, err := issuer.sign(device, TokenTypeAccess, issuer.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := issuer.sign(device, TokenTypeRefresh, issuer.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresInSec: int(issuer.accessTTL / time.Second),
	}, nil
}

// Refresh exchanges a refresh token for a new access token.
func (issuer *Issuer) Refresh(refreshToken string) (string, int, error) {
	device, tokenType, err := issuer.Verify(refreshToken)
	if err != nil {
		return "", 0, err
	}
	if tokenType != TokenTypeRefresh {
		return "", 0, ErrTokenType
	}
	access, err := issuer.sign(device, TokenTypeAccess, issuer.accessTTL)
	if err != nil {
		return "", 0, err
	}
	return access, int(issuer.accessTTL / time.Second), nil
}

// Verify checks signature, issuer, audience and expiry and returns the
// device the token was issued to.
func (issuer *Issuer) Verify(token string) (Device, TokenType, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(issuer.now),
	)

	claims := &deviceClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return issuer.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return Device{}, "", ErrTokenExpired
	case err != nil, parsed == nil, !parsed.Valid:
		return Device{}, "", ErrTokenInvalid
	}

	if claims.Subject == "" || claims.DeviceName == "" {
		return Device{}, "", ErrTokenInvalid
	}
	if claims.Type != TokenTypeAccess && claims.Type != TokenTypeRefresh {
		return Device{}, "", ErrTokenInvalid
	}
	return Device{ID: claims.Subject, Name: claims.DeviceName}, claims.Type, nil
}

func (issuer *Issuer) sign(device Device, tokenType TokenType, ttl time.Duration) (string, error) {
	now := issuer.now()
	claims := deviceClaims{
		DeviceName: device.Name,
		Type:       tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   device.ID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(issuer.secret)
}
