package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Shrinet82/ai-sre-agent/internal/config"
	"github.com/Shrinet82/ai-sre-agent/internal/db"
	"github.com/Shrinet82/ai-sre-agent/internal/model"
)

const (
	accessTokenTTL    = time.Hour
	minPasswordLength = 8
)

var (
	ErrInvalidInput  = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrMisconfigured = errors.New("auth config invalid")
)

// AuthService issues and verifies operator tokens. Two paths are accepted:
// locally issued HS256 tokens from the admin login, and OIDC bearer tokens
// when OIDC_ISSUER is configured.
type AuthService struct {
	repo      *db.Postgres
	jwtSecret []byte
	verifier  *oidc.IDTokenVerifier
}

type authClaims struct {
	LoginID string `json:"loginId"`
	jwt.RegisteredClaims
}

func NewAuthService(ctx context.Context, repo *db.Postgres, cfg config.AuthConfig) (*AuthService, error) {
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("%w: JWT_SECRET is required", ErrMisconfigured)
	}

	s := &AuthService{
		repo:      repo,
		jwtSecret: []byte(cfg.JWTSecret),
	}

	if cfg.OIDCIssuer != "" {
		provider, err := oidc.NewProvider(ctx, cfg.OIDCIssuer)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot reach OIDC issuer: %v", ErrMisconfigured, err)
		}
		s.verifier = provider.Verifier(&oidc.Config{ClientID: cfg.OIDCClientID})
	}

	return s, nil
}

func (s *AuthService) EnsureSchema(ctx context.Context) error {
	return s.repo.EnsureAuthSchema(ctx)
}

// EnsureAdmin seeds (or refreshes) the operator account from config.
func (s *AuthService) EnsureAdmin(ctx context.Context, loginID, password string) error {
	if strings.TrimSpace(loginID) == "" || strings.TrimSpace(password) == "" {
		return fmt.Errorf("%w: ADMIN_ID/ADMIN_PASSWORD are required", ErrMisconfigured)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: ADMIN_PASSWORD too short", ErrMisconfigured)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	_, err = s.repo.UpsertUser(ctx, loginID, string(hash))
	return err
}

func (s *AuthService) Login(ctx context.Context, loginID, password string) (string, int64, error) {
	if strings.TrimSpace(loginID) == "" || strings.TrimSpace(password) == "" {
		return "", 0, ErrInvalidInput
	}

	user, err := s.repo.GetUserByLoginID(ctx, loginID)
	if err != nil {
		if db.IsNoRows(err) {
			return "", 0, ErrUnauthorized
		}
		return "", 0, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", 0, ErrUnauthorized
	}

	return s.generateAccessToken(user)
}

// VerifyToken accepts a local HS256 token or, when configured, an OIDC ID
// token.
func (s *AuthService) VerifyToken(ctx context.Context, tokenStr string) (*model.AuthUser, error) {
	if user, err := s.parseAccessToken(tokenStr); err == nil {
		return user, nil
	}

	if s.verifier != nil {
		idToken, err := s.verifier.Verify(ctx, tokenStr)
		if err != nil {
			return nil, ErrUnauthorized
		}
		var claims struct {
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			return nil, ErrUnauthorized
		}
		login := claims.Email
		if login == "" {
			login = idToken.Subject
		}
		return &model.AuthUser{LoginID: login}, nil
	}

	return nil, ErrUnauthorized
}

func (s *AuthService) parseAccessToken(tokenStr string) (*model.AuthUser, error) {
	claims := &authClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrUnauthorized
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, ErrUnauthorized
	}

	return &model.AuthUser{
		ID:      userID,
		LoginID: claims.LoginID,
	}, nil
}

func (s *AuthService) generateAccessToken(user *model.User) (string, int64, error) {
	now := time.Now()
	claims := authClaims{
		LoginID: user.LoginID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", 0, err
	}

	return signed, int64(accessTokenTTL.Seconds()), nil
}
