package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/lms-notifications/pkg/config"
	"github.com/angelmondragon/lms-notifications/pkg/enums"
)

// Access tokens are minted by the LMS identity service. The jti doubles as
// the session id checked against Redis on every request.

var signingMethod = jwt.SigningMethodHS256

var (
	ErrMissingSecret = errors.New("jwt secret is required")
	ErrMalformed     = errors.New("token identity is malformed")
)

// Identity is who a token speaks for.
type Identity struct {
	UserID    uuid.UUID
	Role      enums.UserRole
	SessionID string
}

// Claims is the JWT body shared with the identity service.
type Claims struct {
	UserID uuid.UUID      `json:"user_id"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Identity projects the claims the service cares about.
func (c *Claims) Identity() Identity {
	return Identity{UserID: c.UserID, Role: c.Role, SessionID: c.ID}
}

// Verifier checks HS256 access tokens against the configured issuer.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(cfg config.JWTConfig) *Verifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	return &Verifier{secret: []byte(cfg.Secret), parser: jwt.NewParser(opts...)}
}

// Verify parses raw and returns its claims once signature, expiry, issuer
// and identity all check out.
func (v *Verifier) Verify(raw string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, ErrMissingSecret
	}
	claims := &Claims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return nil, err
	}
	if claims.UserID == uuid.Nil || !claims.Role.IsValid() {
		return nil, ErrMalformed
	}
	return claims, nil
}

// Issue signs a token for id. Production tokens come from the identity
// service; this backs dev tooling and tests.
func Issue(cfg config.JWTConfig, now time.Time, id Identity) (string, error) {
	if cfg.Secret == "" {
		return "", ErrMissingSecret
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", fmt.Errorf("jwt expiration minutes must be positive")
	}
	if id.UserID == uuid.Nil || !id.Role.IsValid() {
		return "", ErrMalformed
	}
	if id.SessionID == "" {
		id.SessionID = uuid.NewString()
	}

	claims := Claims{
		UserID: id.UserID,
		Role:   id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id.SessionID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("signing jwt: %w", err)
	}
	return signed, nil
}
