package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"fms/internal/models"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the JWT payload carried by bearer tokens.
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens and maps roles to the
// approval permission.
type Tokens struct {
	secret        []byte
	ttl           time.Duration
	approverRoles map[string]bool
}

func NewTokens(secret string, ttl time.Duration, approverRoles []string) *Tokens {
	roles := make(map[string]bool, len(approverRoles))
	for _, r := range approverRoles {
		roles[r] = true
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, approverRoles: roles}
}

// Issue signs a token for u.
func (t *Tokens) Issue(u models.User) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "fms",
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies raw and returns the actor it names.
func (t *Tokens) Parse(raw string) (models.Actor, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithIssuer("fms"), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return models.Actor{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return models.Actor{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.Actor{}, ErrInvalidToken
	}
	return t.Actor(id, claims.Username, claims.Role), nil
}

// Actor builds the engine-facing identity for a user.
func (t *Tokens) Actor(id int64, username, role string) models.Actor {
	return models.Actor{
		UserID:     id,
		Username:   username,
		Role:       role,
		CanApprove: t.approverRoles[role],
	}
}
