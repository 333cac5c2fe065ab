package token

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/html-librarian/mig-catalog/internal/config"
	"github.com/html-librarian/mig-catalog/internal/util"
)

// ErrInvalidToken is returned for any token that fails verification. The
// reason is deliberately not exposed to callers so the HTTP layer cannot
// leak which check failed.
var ErrInvalidToken = errors.New("invalid token")

const tokenTypeAccess = "access"

// Claims is the payload carried by an access token.
type Claims struct {
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// Service issues and verifies signed access tokens. Verification tries an
// ordered list of keys (current first, then rotation) so keys can be rolled
// without invalidating live sessions.
type Service struct {
	signingKey       []byte
	verificationKeys [][]byte
	issuer           string
	audience         string
	defaultTTL       time.Duration
	maxAge           time.Duration
	logger           *zap.Logger
	now              func() time.Time
}

// NewService validates the key material and builds a token service.
// Construction fails if the primary key is absent, shorter than 64
// characters, or a known placeholder. A missing rotation key is replaced
// with a random one, which simply means no previous-generation tokens
// will verify.
func NewService(cfg config.AuthConfig, logger *zap.Logger) (*Service, error) {
	if err := config.ValidateSecretKey(cfg.SecretKey); err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}

	rotationKey := cfg.RotationSecretKey
	if rotationKey == "" {
		generated, err := randomSecret(64)
		if err != nil {
			return nil, fmt.Errorf("token service: failed to generate rotation key: %w", err)
		}
		rotationKey = generated
		logger.Warn("ROTATION_SECRET_KEY not set, generated an ephemeral one",
			util.String("consequence", "tokens signed before restart will not verify"))
	}

	return &Service{
		signingKey: []byte(cfg.SecretKey),
		verificationKeys: [][]byte{
			[]byte(cfg.SecretKey),
			[]byte(rotationKey),
		},
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		defaultTTL: cfg.AccessTokenTTL,
		maxAge:     cfg.MaxTokenAge,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Issue creates a signed access token for the subject. A non-positive ttl
// falls back to the configured default.
func (s *Service) Issue(subjectID string, ttl time.Duration) (string, error) {
	if subjectID == "" {
		return "", fmt.Errorf("subject id is required")
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	now := s.now()
	claims := Claims{
		TokenType: tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// Verify parses and validates a token string. Each verification key is
// tried in order; the first signature match wins. Beyond the signature and
// standard time claims, the token is rejected when issuer, audience or type
// do not match, a required claim is missing, or the token was issued more
// than the configured maximum age ago.
func (s *Service) Verify(tokenString string) (*Claims, error) {
	var lastErr error
	for _, key := range s.verificationKeys {
		claims, err := s.verifyWithKey(tokenString, key)
		if err == nil {
			return claims, nil
		}
		lastErr = err
	}

	s.logger.Debug("token verification failed", util.ErrorField(lastErr))
	return nil, ErrInvalidToken
}

func (s *Service) verifyWithKey(tokenString string, key []byte) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)

	parsed, err := parser.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("unexpected claims type")
	}

	if claims.TokenType != tokenTypeAccess {
		return nil, fmt.Errorf("unexpected token type %q", claims.TokenType)
	}
	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("missing required claim")
	}
	if claims.IssuedAt == nil || claims.NotBefore == nil {
		return nil, fmt.Errorf("missing required time claim")
	}

	// App-level staleness limit, stricter than exp: a token older than
	// maxAge is rejected regardless of its stated expiry.
	if s.now().Sub(claims.IssuedAt.Time) > s.maxAge {
		return nil, fmt.Errorf("token issued too long ago")
	}

	return claims, nil
}

func randomSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
