package taskman

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeEmptyPassword       = "EMPTY_PASSWORD"
	TextCodePasswordMismatch    = "PASSWORD_MISMATCH"
	TextCodeTokenExpired        = "TOKEN_EXPIRED"
	TextCodeTokenMalformed      = "TOKEN_MALFORMED"
	TextCodeTokenWrongType      = "TOKEN_WRONG_TYPE"
	TextCodeUnauthenticated     = "UNAUTHENTICATED"
	TextCodeInvalidCreds        = "INVALID_CREDENTIALS"
	TextCodeUsernameTaken       = "USERNAME_TAKEN"
	TextCodeRefreshTokenMissing = "REFRESH_TOKEN_MISSING"
	TextCodeRefreshTokenInvalid = "REFRESH_TOKEN_INVALID"
	TextCodeRefreshUserNotFound = "REFRESH_USER_NOT_FOUND"
	TextCodeNotFound            = "NOT_FOUND"
	TextCodeInternal            = "INTERNAL"
	TextCodeValidationFailed    = "VALIDATION_FAILED"
	TextCodeBadRequestBody      = "BAD_REQUEST_BODY"
	TextCodeBadQuery            = "BAD_QUERY"
	TextCodeBadTaskID           = "BAD_TASK_ID"
	TextCodeCSRFFailed          = "CSRF_FAILED"
)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryBadInput).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash
var ErrMismatchedHashAndPassword = goerrors.New("mismatched hash and password", goerrors.CategoryAuth).
	WithTextCode(TextCodePasswordMismatch).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired is returned when a token is past its exp claim
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed covers bad signatures, bad payloads and unknown algorithms
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenWrongType is returned when an access token is used as refresh token or vice versa
var ErrTokenWrongType = goerrors.New("token type mismatch", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenWrongType).
	WithCode(goerrors.CodeUnauthorized)

var ErrUnauthenticated = goerrors.New("Could not validate credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(goerrors.CodeUnauthorized)

var ErrInvalidCredentials = goerrors.New("Incorrect username or password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrUsernameTaken is a conflict reported as 400 to registering clients
var ErrUsernameTaken = goerrors.New("Username already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeUsernameTaken).
	WithCode(goerrors.CodeBadRequest)

var ErrRefreshTokenMissing = goerrors.New("Refresh token missing", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenMissing).
	WithCode(goerrors.CodeUnauthorized)

var ErrInvalidRefreshToken = goerrors.New("Invalid refresh token", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

var ErrRefreshUserNotFound = goerrors.New("User not found", goerrors.CategoryAuth).
	WithTextCode(TextCodeRefreshUserNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotFound is the base for every entity lookup miss
var ErrNotFound = goerrors.New("object not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInternal hides storage and signing details from callers
var ErrInternal = goerrors.New("Internal server error", goerrors.CategoryInternal).
	WithTextCode(TextCodeInternal).
	WithCode(goerrors.CodeInternal)

// withSource returns a copy of base wrapping err. The With* helpers of
// go-errors mutate in place, sentinels are always cloned first.
func withSource(base *goerrors.Error, err error) *goerrors.Error {
	clone := base.Clone()
	clone.Source = err
	return clone
}

// badInput builds a 400 error for malformed requests
func badInput(err error, message, textCode string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryBadInput, message).
		WithTextCode(textCode).
		WithCode(goerrors.CodeBadRequest)
}

// HasTextCode reports whether err carries a rich error with code
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	return goerrors.As(err, &richErr) && richErr.TextCode == code
}

// NotFoundError builds the user facing not found error for kind and id
func NotFoundError(kind string, id any) *goerrors.Error {
	clone := ErrNotFound.Clone()
	clone.Message = fmt.Sprintf("%s with id %v not found", kind, id)
	return clone.WithMetadata(map[string]any{
		"kind": kind,
		"id":   fmt.Sprint(id),
	})
}

// ValidationError turns ozzo field errors into go-errors field errors,
// sorted by field name
func ValidationError(err error) *goerrors.Error {
	var fields []goerrors.FieldError

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		keys := make([]string, 0, len(verrs))
		for k, ferr := range verrs {
			if ferr != nil {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)

		for _, k := range keys {
			fields = append(fields, goerrors.FieldError{
				Field:   k,
				Message: verrs[k].Error(),
			})
		}
	}

	verr := goerrors.NewValidation("validation failed", fields...).
		WithTextCode(TextCodeValidationFailed).
		WithCode(goerrors.CodeBadRequest)
	verr.Source = err
	return verr
}

// AsError extracts a rich error, falling back to an internal error
func AsError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}

	return goerrors.Wrap(err, goerrors.CategoryInternal, ErrInternal.Message).
		WithTextCode(TextCodeInternal).
		WithCode(goerrors.CodeInternal)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return HasTextCode(err, TextCodeTokenExpired) || strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for malformed tokens
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return HasTextCode(err, TextCodeTokenMalformed) || strings.Contains(err.Error(), "token is malformed")
}

// StatusCode is the HTTP status for err. Errors without an explicit
// code fall back on their category.
func StatusCode(err error) int {
	richErr := AsError(err)
	if richErr == nil {
		return http.StatusOK
	}
	if richErr.Code != 0 {
		return richErr.Code
	}

	switch richErr.Category {
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict, goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
