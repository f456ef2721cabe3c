package taskman

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// TokenPair is what gets handed to a client after a successful
// register, login or refresh
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenService issues and decodes session tokens
type TokenService interface {
	TokenValidator
	Issue(subject string, typ TokenType, ttl time.Duration) (string, time.Time, error)
	IssuePair(subject string) (TokenPair, error)
	Decode(token string) (*SessionClaims, error)
	DecodeType(token string, typ TokenType) (*SessionClaims, error)
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	signingKey    []byte
	signingMethod jwt.SigningMethod
	accessTTL     time.Duration
	refreshTTL    time.Duration
	issuer        string
	now           func() time.Time
	logger        Logger
}

// TokenServiceOption customizes a TokenServiceImpl
type TokenServiceOption func(*TokenServiceImpl)

// WithClock overrides the time source used for iat/exp and validation
func WithClock(now func() time.Time) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		if now != nil {
			ts.now = now
		}
	}
}

// WithTokenLogger sets the logger
func WithTokenLogger(logger Logger) TokenServiceOption {
	return func(ts *TokenServiceImpl) {
		ts.logger = normalizeLogger(logger)
	}
}

// NewTokenService creates a new TokenService from cfg. Only HMAC
// algorithms are accepted since the key is a shared secret.
func NewTokenService(cfg Config, opts ...TokenServiceOption) (*TokenServiceImpl, error) {
	if cfg.GetSigningKey() == "" {
		return nil, goerrors.New("signing key is required", goerrors.CategoryBadInput)
	}

	method := jwt.GetSigningMethod(cfg.GetSigningMethod())
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, goerrors.New(
			fmt.Sprintf("unsupported signing method %q", cfg.GetSigningMethod()),
			goerrors.CategoryBadInput,
		)
	}

	ts := &TokenServiceImpl{
		signingKey:    []byte(cfg.GetSigningKey()),
		signingMethod: method,
		accessTTL:     cfg.GetAccessTokenTTL(),
		refreshTTL:    cfg.GetRefreshTokenTTL(),
		issuer:        cfg.GetIssuer(),
		now:           func() time.Time { return time.Now().UTC() },
		logger:        defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(ts)
		}
	}

	return ts, nil
}

// Issue signs a token of the given type for subject valid for ttl
func (ts *TokenServiceImpl) Issue(subject string, typ TokenType, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, goerrors.New("subject is required", goerrors.CategoryBadInput)
	}

	now := ts.now()
	expiresAt := now.Add(ttl)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Type: typ,
	}

	ensureTokenID(&claims.RegisteredClaims)

	token, err := ts.SignClaims(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// IssuePair issues an access and a refresh token for the same subject
func (ts *TokenServiceImpl) IssuePair(subject string) (TokenPair, error) {
	access, accessExp, err := ts.Issue(subject, TokenTypeAccess, ts.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}

	refresh, refreshExp, err := ts.Issue(subject, TokenTypeRefresh, ts.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// SignClaims signs arbitrary claims using the configured key
func (ts *TokenServiceImpl) SignClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", goerrors.New("claims must not be nil", goerrors.CategoryInternal)
	}

	token := jwt.NewWithClaims(ts.signingMethod, claims)

	signedString, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT")
	}

	return signedString, nil
}

// Decode verifies signature and expiry. It never returns partial claims.
func (ts *TokenServiceImpl) Decode(tokenString string) (*SessionClaims, error) {
	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{ts.signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		return ts.signingKey, nil
	}, parserOptions...)

	if err != nil {
		if IsTokenExpiredError(err) {
			return nil, goerrors.Wrap(err, ErrTokenExpired.Category, ErrTokenExpired.Message).
				WithTextCode(ErrTokenExpired.TextCode).
				WithCode(ErrTokenExpired.Code)
		}
		ts.logger.Debug("token service decode failed: %v", err)
		return nil, goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(ErrTokenMalformed.Code)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid || claims.Subject() == "" {
		ts.logger.Error("token service could not decode or validate claims")
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// DecodeType decodes and requires the token to be of the given type
func (ts *TokenServiceImpl) DecodeType(tokenString string, typ TokenType) (*SessionClaims, error) {
	claims, err := ts.Decode(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Type != typ {
		return nil, ErrTokenWrongType.Clone().WithMetadata(map[string]any{
			"expected": string(typ),
			"actual":   string(claims.Type),
		})
	}
	return claims, nil
}

// Validate satisfies TokenValidator, accepting access tokens only
func (ts *TokenServiceImpl) Validate(tokenString string) (*SessionClaims, error) {
	return ts.DecodeType(tokenString, TokenTypeAccess)
}

// AccessTTL returns the configured access token lifetime
func (ts *TokenServiceImpl) AccessTTL() time.Duration {
	return ts.accessTTL
}

// RefreshTTL returns the configured refresh token lifetime
func (ts *TokenServiceImpl) RefreshTTL() time.Duration {
	return ts.refreshTTL
}
