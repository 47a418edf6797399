package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var ErrBadPassword = errors.New("authentication failed")

// Service gates the frequência module behind the shared staff password.
// There is no per-user account registry: one password, provisioned as a
// bcrypt hash in config, unlocks the module and yields a bearer token.
type Service struct {
	passwordHash []byte
	secret       []byte
	tokenTTL     time.Duration
}

func NewService(passwordHash, jwtSecret string) *Service {
	return &Service{
		passwordHash: []byte(passwordHash),
		secret:       []byte(jwtSecret),
		tokenTTL:     24 * time.Hour,
	}
}

func (s *Service) Secret() []byte { return s.secret }

// Login verifies the shared password and issues an HS256 token.
func (s *Service) Login(password string) (string, error) {
	password = strings.TrimSpace(password)
	if password == "" {
		return "", ErrBadPassword
	}
	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return "", ErrBadPassword
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "frequencia",
		"exp": time.Now().Add(s.tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	})
	return token.SignedString(s.secret)
}

// Check reports whether a previously issued token is still valid.
func (s *Service) Check(tokenStr string) bool {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	return err == nil && token != nil && token.Valid
}
