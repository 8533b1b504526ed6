package pizzaapi

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/wondertwin-ai/pizza-e2e/internal/pizzastore"
)

const issuer = "jwt-pizza-twin"

// UserClaims are the claims of an auth token.
type UserClaims struct {
	UserID int64             `json:"id"`
	Name   string            `json:"name"`
	Email  string            `json:"email"`
	Roles  []pizzastore.Role `json:"roles"`
	jwt.RegisteredClaims
}

// OrderClaims are the claims of the order receipt the factory signs.
type OrderClaims struct {
	Vendor map[string]string `json:"vendor"`
	Diner  map[string]any    `json:"diner"`
	Order  pizzastore.Order  `json:"order"`
	jwt.RegisteredClaims
}

// JWTManager issues and verifies HS256 tokens for the pizza twin.
type JWTManager struct {
	secret []byte
	now    func() time.Time
}

// NewJWTManager creates a manager signing with secret. An empty secret is
// replaced with 32 random bytes.
func NewJWTManager(secret string) (*JWTManager, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate JWT secret: %w", err)
		}
	}
	return &JWTManager{secret: key, now: time.Now}, nil
}

// GenerateToken signs an auth token for u. Every call yields a distinct
// token so logging out one session leaves the others alive.
func (m *JWTManager) GenerateToken(u pizzastore.User) (string, error) {
	now := m.now()
	claims := UserClaims{
		UserID: u.ID,
		Name:   u.Name,
		Email:  u.Email,
		Roles:  u.Public().Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  fmt.Sprint(u.ID),
			IssuedAt: jwt.NewNumericDate(now),
			ID:       uuid.NewString(),
		},
	}
	return m.sign(claims)
}

// SignOrder signs the receipt returned with a new order.
func (m *JWTManager) SignOrder(diner pizzastore.User, order pizzastore.Order) (string, error) {
	claims := OrderClaims{
		Vendor: map[string]string{"id": "pizza-e2e", "name": "JWT Pizza twin"},
		Diner:  map[string]any{"id": diner.ID, "name": diner.Name, "email": diner.Email},
		Order:  order,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			IssuedAt: jwt.NewNumericDate(m.now()),
			ID:       uuid.NewString(),
		},
	}
	return m.sign(claims)
}

func (m *JWTManager) sign(claims jwt.Claims) (string, error) {
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

// ParseToken verifies an auth token's signature and returns its claims.
func (m *JWTManager) ParseToken(token string) (*UserClaims, error) {
	claims := &UserClaims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseOrder verifies an order receipt.
func (m *JWTManager) ParseOrder(token string) (*OrderClaims, error) {
	claims := &OrderClaims{}
	if err := m.parse(token, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *JWTManager) parse(token string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return errors.Join(errInvalidToken, err)
	}
	return nil
}

var errInvalidToken = errors.New("invalid token")
