package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jwalitptl/account-security/internal/model"
	apperrors "github.com/jwalitptl/account-security/pkg/errors"
)

// JWTService mints and validates session tokens.
type JWTService interface {
	GenerateTokenPair(acc *model.Account) (*model.TokenPair, error)
	ValidateAccessToken(token string) (*model.TokenClaims, error)
	ValidateRefreshToken(token string) (*model.TokenClaims, error)
}

type Config struct {
	Secret        string
	RefreshSecret string
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

type jwtService struct {
	cfg Config
	now func() time.Time
}

// NewJWTService returns an HS256 token issuer. Access and refresh tokens are
// signed with separate secrets.
func NewJWTService(cfg Config) (JWTService, error) {
	if cfg.Secret == "" || cfg.RefreshSecret == "" {
		return nil, errors.New("jwt secrets must be set")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = 24 * time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "account-security"
	}
	return &jwtService{cfg: cfg, now: time.Now}, nil
}

func (s *jwtService) GenerateTokenPair(acc *model.Account) (*model.TokenPair, error) {
	now := s.now()

	access, accessExp, err := s.sign(acc, model.TokenTypeAccess, s.cfg.Secret, now, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, _, err := s.sign(acc, model.TokenTypeRefresh, s.cfg.RefreshSecret, now, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}

	return &model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresAt:    accessExp,
	}, nil
}

func (s *jwtService) sign(acc *model.Account, typ model.TokenType, secret string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := model.TokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   acc.ID.String(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		AccountID:      acc.ID,
		OrganizationID: acc.OrganizationID,
		Email:          acc.Email,
		Role:           acc.Role,
		Locale:         acc.PreferredLanguage,
		TokenType:      typ,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign %s token: %w", typ, err)
	}
	return signed, exp, nil
}

func (s *jwtService) ValidateAccessToken(token string) (*model.TokenClaims, error) {
	return s.parse(token, s.cfg.Secret, model.TokenTypeAccess)
}

func (s *jwtService) ValidateRefreshToken(token string) (*model.TokenClaims, error) {
	return s.parse(token, s.cfg.RefreshSecret, model.TokenTypeRefresh)
}

func (s *jwtService) parse(token, secret string, want model.TokenType) (*model.TokenClaims, error) {
	claims := &model.TokenClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.cfg.Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, apperrors.NewTokenInvalid(err)
	}
	if !parsed.Valid || claims.TokenType != want {
		return nil, apperrors.NewTokenInvalid(fmt.Errorf("unexpected token type %q", claims.TokenType))
	}
	return claims, nil
}
