// Package auth covers credentials and session tokens: bcrypt password hashes
// and HS256 bearer tokens naming a user and role.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"missiondesk/internal/domain"
)

const (
	CodeUserNotFound  = "user_not_found"
	CodeWrongPassword = "wrong_password"
	CodeInvalidToken  = "invalid_token"
)

// CredentialsError is returned by login when the name or password is wrong.
type CredentialsError struct {
	Code string
}

func (e CredentialsError) Error() string {
	switch e.Code {
	case CodeUserNotFound:
		return "user not found"
	case CodeWrongPassword:
		return "wrong password"
	default:
		return "invalid credentials"
	}
}

func (e CredentialsError) ErrorCode() string { return e.Code }

var ErrTokenDisabled = errors.New("token signing is not configured")

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return CredentialsError{Code: CodeWrongPassword}
	}
	return nil
}

// Claims carries the authenticated user.
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies bearer tokens. A zero Secret disables issuing.
type Tokens struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
	Now    func() time.Time
}

func (t Tokens) Enabled() bool { return len(t.Secret) > 0 }

func (t Tokens) now() time.Time {
	if t.Now != nil {
		return t.Now()
	}
	return time.Now()
}

func (t Tokens) Issue(u domain.User) (string, time.Time, error) {
	if !t.Enabled() {
		return "", time.Time{}, ErrTokenDisabled
	}
	ttl := t.TTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	issued := t.now().UTC()
	expires := issued.Add(ttl)
	claims := Claims{
		Role: u.Role.Name(),
		Name: u.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			Issuer:    t.Issuer,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (t Tokens) Parse(raw string) (*Claims, error) {
	if !t.Enabled() {
		return nil, ErrTokenDisabled
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.Issuer))
	}
	claims := &Claims{}
	token, err := jwt.NewParser(opts...).ParseWithClaims(strings.TrimSpace(raw), claims, func(*jwt.Token) (any, error) {
		return t.Secret, nil
	})
	if err != nil || !token.Valid {
		return nil, CredentialsError{Code: CodeInvalidToken}
	}
	if claims.Subject == "" {
		return nil, CredentialsError{Code: CodeInvalidToken}
	}
	return claims, nil
}
