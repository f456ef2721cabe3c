package taskman

import (
	"context"
	"time"

	"github.com/goliatone/go-taskman/repository"
	"github.com/google/uuid"
)

const (
	MessageRegistered = "Successfully registered"
	MessageLoggedIn   = "Successfully logged in"
	MessageRefreshed  = "Tokens refreshed successfully"
)

// AuthResult is the body returned by register, login and refresh
type AuthResult struct {
	Message string    `json:"message"`
	UserID  uuid.UUID `json:"user_id"`
}

// Auther runs the session lifecycle: register, login, refresh and
// access token authentication. It keeps no session state of its own,
// a session is whatever token pair the client holds.
type Auther struct {
	users        UserStore
	tokenService TokenService
	hasher       PasswordAuthenticator
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Auther
func NewAuthenticator(users UserStore, tokenService TokenService, opts Config) *Auther {
	return &Auther{
		users:        users,
		tokenService: tokenService,
		hasher:       NewBcryptHasher(opts.GetPasswordCost()),
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = normalizeLogger(logger)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithPasswordHasher replaces the bcrypt hasher
func (s *Auther) WithPasswordHasher(hasher PasswordAuthenticator) *Auther {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Register creates the user and starts a session for it
func (s *Auther) Register(ctx context.Context, req RegisterRequest) (*AuthResult, TokenPair, error) {
	fail := func(err error) (*AuthResult, TokenPair, error) {
		s.emitAuthEvent(ctx, ActivityEventRegisterFailure, "", req.Username, map[string]any{
			"error": err.Error(),
		})
		return nil, TokenPair{}, err
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return fail(ValidationError(err))
	}

	existing, err := s.users.GetByUsername(ctx, req.Username)
	switch {
	case err == nil && existing != nil:
		return fail(ErrUsernameTaken)
	case err != nil && !repository.IsRecordNotFound(err):
		s.logger.Error("register lookup failed: %v", err)
		return fail(withSource(ErrInternal, err))
	}

	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("register hash failed: %v", err)
		return fail(withSource(ErrInternal, err))
	}

	user, err := s.users.Register(ctx, UserCreate{
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Username:     req.Username,
		PasswordHash: hash,
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return fail(withSource(ErrUsernameTaken, err))
		}
		s.logger.Error("register persist failed: %v", err)
		return fail(withSource(ErrInternal, err))
	}

	pair, err := s.issue(user)
	if err != nil {
		return fail(err)
	}

	s.emitAuthEvent(ctx, ActivityEventRegisterSuccess, user.GetID(), user.Username, nil)

	return &AuthResult{Message: MessageRegistered, UserID: user.ID}, pair, nil
}

// Login verifies the credentials and starts a session. Unknown users
// and wrong passwords fail the same way.
func (s *Auther) Login(ctx context.Context, req LoginRequest) (*AuthResult, TokenPair, error) {
	fail := func(userID string, err error) (*AuthResult, TokenPair, error) {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, userID, req.Username, map[string]any{
			"error": err.Error(),
		})
		return nil, TokenPair{}, err
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return fail("", ValidationError(err))
	}

	user, err := s.users.GetByUsername(ctx, req.Username)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return fail("", ErrInvalidCredentials)
		}
		s.logger.Error("login lookup failed: %v", err)
		return fail("", withSource(ErrInternal, err))
	}

	if err := s.hasher.ComparePasswordAndHash(req.Password, user.PasswordHash); err != nil {
		s.logger.Debug("login password mismatch for %s", user.GetID())
		return fail(user.GetID(), ErrInvalidCredentials)
	}

	pair, err := s.issue(user)
	if err != nil {
		return fail(user.GetID(), err)
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, user.GetID(), user.Username, nil)

	return &AuthResult{Message: MessageLoggedIn, UserID: user.ID}, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. The old
// refresh token is not revoked and stays valid until it expires.
func (s *Auther) Refresh(ctx context.Context, rawRefreshToken string) (*AuthResult, TokenPair, error) {
	fail := func(userID string, err error) (*AuthResult, TokenPair, error) {
		s.emitAuthEvent(ctx, ActivityEventRefreshFailure, userID, "", map[string]any{
			"error": err.Error(),
		})
		return nil, TokenPair{}, err
	}

	if rawRefreshToken == "" {
		return fail("", ErrRefreshTokenMissing)
	}

	claims, err := s.tokenService.DecodeType(rawRefreshToken, TokenTypeRefresh)
	if err != nil {
		return fail("", withSource(ErrInvalidRefreshToken, err))
	}

	userID, err := claims.UserID()
	if err != nil {
		return fail("", withSource(ErrInvalidRefreshToken, err))
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return fail(userID.String(), ErrRefreshUserNotFound)
		}
		s.logger.Error("refresh lookup failed: %v", err)
		return fail(userID.String(), withSource(ErrInternal, err))
	}

	pair, err := s.issue(user)
	if err != nil {
		return fail(user.GetID(), err)
	}

	s.emitAuthEvent(ctx, ActivityEventRefreshSuccess, user.GetID(), user.Username, map[string]any{
		"previous_jti": claims.TokenID(),
	})

	return &AuthResult{Message: MessageRefreshed, UserID: user.ID}, pair, nil
}

// Authenticate resolves the user behind an access token. Every failure
// is reported as ErrUnauthenticated except storage errors.
func (s *Auther) Authenticate(ctx context.Context, rawAccessToken string) (*User, error) {
	user, _, err := s.AuthenticateClaims(ctx, rawAccessToken)
	return user, err
}

// AuthenticateClaims is Authenticate that also returns the decoded claims
func (s *Auther) AuthenticateClaims(ctx context.Context, rawAccessToken string) (*User, *SessionClaims, error) {
	if rawAccessToken == "" {
		return nil, nil, ErrUnauthenticated
	}

	claims, err := s.tokenService.DecodeType(rawAccessToken, TokenTypeAccess)
	if err != nil {
		return nil, nil, withSource(ErrUnauthenticated, err)
	}

	userID, err := claims.UserID()
	if err != nil {
		return nil, nil, withSource(ErrUnauthenticated, err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, withSource(ErrUnauthenticated, err)
		}
		s.logger.Error("authenticate lookup failed: %v", err)
		return nil, nil, withSource(ErrInternal, err)
	}

	return user, claims, nil
}

func (s *Auther) issue(identity Identity) (TokenPair, error) {
	pair, err := s.tokenService.IssuePair(identity.GetID())
	if err != nil {
		s.logger.Error("failed to issue token pair: %v", err)
		return TokenPair{}, withSource(ErrInternal, err)
	}
	return pair, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, userID, username string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Username:   username,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}
