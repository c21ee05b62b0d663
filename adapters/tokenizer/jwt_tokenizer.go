package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/gatekeeper/core"
)

const AudienceAccess = string(core.TokenKindAccess)
const AudienceRefresh = string(core.TokenKindRefresh)

// minSecretLength guards against trivially guessable HMAC keys.
const minSecretLength = 32

type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// JWTTokenizer implements the Tokenizer interface using HS256 JWTs
type JWTTokenizer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewJWTTokenizer creates a new JWT tokenizer
func NewJWTTokenizer(cfg Config) (*JWTTokenizer, error) {
	if len(cfg.Secret) < minSecretLength {
		return nil, fmt.Errorf("token secret must be at least %d bytes", minSecretLength)
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = core.DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = core.DefaultRefreshTTL
	}
	return &JWTTokenizer{
		secret:     cfg.Secret,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}, nil
}

// WithClock replaces the time source used for issuing and validating.
func (j *JWTTokenizer) WithClock(now func() time.Time) *JWTTokenizer {
	j.now = now
	return j
}

// Issue mints a fresh access and refresh token for the subject
func (j *JWTTokenizer) Issue(subject string, role core.Role) (core.TokenPair, error) {
	if subject == "" {
		return core.TokenPair{}, fmt.Errorf("%w: empty subject", core.ErrInvalidInput)
	}
	if !role.IsValid() {
		return core.TokenPair{}, fmt.Errorf("%w: %q", core.ErrInvalidRole, role)
	}

	now := j.now()
	access, accessExp, err := j.sign(newSessionClaims(subject, role, core.TokenKindAccess, uuid.NewString()), now, j.accessTTL)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to sign access token: %w", err)
	}
	refresh, refreshExp, err := j.sign(newSessionClaims(subject, role, core.TokenKindRefresh, uuid.NewString()), now, j.refreshTTL)
	if err != nil {
		return core.TokenPair{}, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	return core.TokenPair{
		Access:           access,
		Refresh:          refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (j *JWTTokenizer) sign(claims SessionClaims, now time.Time, ttl time.Duration) (string, time.Time, error) {
	claims.Issuer = j.issuer
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, claims.ExpiresAt.Time, nil
}

// Verify checks the signature first, then expiry, then the token kind.
func (j *JWTTokenizer) Verify(tokenStr string, kind core.TokenKind) (*core.Claims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, j.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(j.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, core.ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", core.ErrTokenMalformed, err)
	}

	if claims.Subject == "" || claims.ID == "" || !claims.Role.IsValid() {
		return nil, fmt.Errorf("%w: incomplete claims", core.ErrTokenMalformed)
	}
	if j.issuer != "" && claims.Issuer != j.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", core.ErrTokenMalformed, claims.Issuer)
	}
	if claims.kind() != kind {
		return nil, core.ErrWrongTokenKind
	}

	return claims.toCore(), nil
}

// Decode reads the claims without verifying the token.
func (j *JWTTokenizer) Decode(tokenStr string) (*core.Claims, error) {
	return Decode(tokenStr)
}

// Decode reads the claims of a session token without verifying it. The
// result must not be used for authorization.
func Decode(tokenStr string) (*core.Claims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrTokenMalformed, err)
	}
	return claims.toCore(), nil
}

func (j *JWTTokenizer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return j.secret, nil
}
