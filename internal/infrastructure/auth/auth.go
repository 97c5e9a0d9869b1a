package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

const DefaultTokenTTL = time.Hour

type Options struct {
	Secret string
	Issuer string
	TTL    time.Duration
	// Users maps usernames to bcrypt password hashes.
	Users map[string]string
	Now   func() time.Time
}

// TokenService checks credentials against bcrypt hashes and issues HS256 bearer tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	users  map[string][]byte
	now    func() time.Time
}

func NewTokenService(opts Options) (*TokenService, error) {
	if strings.TrimSpace(opts.Secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	issuer := opts.Issuer
	if issuer == "" {
		issuer = "filings-rag-assistant"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	users := make(map[string][]byte, len(opts.Users))
	for name, hash := range opts.Users {
		users[name] = []byte(hash)
	}
	return &TokenService{
		secret: []byte(opts.Secret),
		issuer: issuer,
		ttl:    ttl,
		users:  users,
		now:    now,
	}, nil
}

// ParseUsers reads "name:bcrypt-hash" pairs separated by commas.
func ParseUsers(raw string) (map[string]string, error) {
	users := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, ok := strings.Cut(entry, ":")
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("auth: malformed user entry %q", entry)
		}
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("auth: user %s: %w", name, err)
		}
		users[name] = hash
	}
	return users, nil
}

// HashPassword is used by the bootstrap default user and by tests.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *TokenService) Login(_ context.Context, username, password string) (string, error) {
	hash, ok := s.users[username]
	if !ok {
		return "", domain.WrapError(domain.ErrUnauthorized, "login", errors.New("invalid credentials"))
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", domain.WrapError(domain.ErrUnauthorized, "login", errors.New("invalid credentials"))
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Subject:   username,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *TokenService) Verify(_ context.Context, token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		if err == nil {
			err = errors.New("token is not valid")
		}
		return "", domain.WrapError(domain.ErrUnauthorized, "verify token", err)
	}
	if claims.Subject == "" {
		return "", domain.WrapError(domain.ErrUnauthorized, "verify token", errors.New("token has no subject"))
	}
	return claims.Subject, nil
}
