package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("tokens: invalid token")
	ErrNoSecret     = errors.New("tokens: signing secret not configured")
)

// Audiences keep staff and patient tokens from being accepted in each other's place.
const (
	AudienceStaff   = "frontdesk-staff"
	AudiencePatient = "frontdesk-patient"
)

// Claims is what a verified token carries.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// Signer issues and verifies HMAC-signed JWTs for one audience.
type Signer struct {
	secret   []byte
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewSigner creates a signer. An empty secret makes every call fail with ErrNoSecret.
func NewSigner(secret, audience string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Signer{secret: []byte(secret), audience: audience, ttl: ttl, now: time.Now}
}

// WithClock overrides the clock used for issue and expiry checks.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	if now != nil {
		s.now = now
	}
	return s
}

// TTL is the lifetime of issued tokens.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs a token for subject.
func (s *Signer) Issue(subject string) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   subject,
		Audience:  jwt.ClaimStrings{s.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokens: sign: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, audience and expiry.
func (s *Signer) Verify(raw string) (Claims, error) {
	if len(s.secret) == 0 {
		return Claims{}, ErrNoSecret
	}
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	},
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	out := Claims{Subject: claims.Subject}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
