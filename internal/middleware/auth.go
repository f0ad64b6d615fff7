// Package middleware provides HTTP middleware for the board service.
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rankboard/rankboard/internal/errors"
	"github.com/rankboard/rankboard/internal/httputil"
	"github.com/rankboard/rankboard/internal/logging"
)

// CookieName is the cookie the access token travels in. The realtime
// handshake reads the same cookie, so browser clients get websocket auth for
// free.
const CookieName = "access_token"

// Claims represents the JWT claims issued at login.
type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware provides JWT authentication over an HMAC secret.
type AuthMiddleware struct {
	secret    []byte
	tokenTTL  time.Duration
	logger    *logging.Logger
	skipPaths map[string]bool
}

// NewAuthMiddleware creates a new authentication middleware. Requests to
// skipPaths pass through unauthenticated.
func NewAuthMiddleware(secret string, tokenTTL time.Duration, logger *logging.Logger, skipPaths []string) *AuthMiddleware {
	skip := make(map[string]bool)
	for _, path := range skipPaths {
		skip[path] = true
	}

	return &AuthMiddleware{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		logger:    logger,
		skipPaths: skip,
	}
}

// IssueToken signs a token for the given identity.
func (m *AuthMiddleware) IssueToken(userID, email, username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:   userID,
		Email:    email,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// TokenTTL reports the configured token lifetime, for cookie expiry.
func (m *AuthMiddleware) TokenTTL() time.Duration { return m.tokenTTL }

// Handler returns the middleware handler.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.skipPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := m.Authenticate(r)
		if err != nil {
			m.logger.WithContext(r.Context()).WithError(err).Debug("authentication failed")
			m.respondError(w, r, err)
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Authenticate extracts and validates credentials from the request: a Bearer
// Authorization header first, the access-token cookie as a fallback.
func (m *AuthMiddleware) Authenticate(r *http.Request) (*Claims, error) {
	tokenString := ""

	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return nil, errors.Unauthorized("Invalid Authorization header format")
		}
		tokenString = parts[1]
	} else if cookie, err := r.Cookie(CookieName); err == nil {
		tokenString = cookie.Value
	}

	if tokenString == "" {
		return nil, errors.Unauthorized("Missing credentials")
	}
	return m.ValidateToken(tokenString)
}

// ValidateToken validates a JWT token and returns its claims.
func (m *AuthMiddleware) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.InvalidToken(nil).WithDetails("method", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	if !token.Valid {
		return nil, errors.InvalidToken(nil)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims")
	}
	return claims, nil
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, r *http.Request, err error) {
	serviceErr := errors.GetServiceError(err)
	if serviceErr == nil {
		serviceErr = errors.Internal("Authentication failed", err)
	}
	httputil.WriteErrorResponse(w, serviceErr.HTTPStatus, string(serviceErr.Code), serviceErr.Message, serviceErr.Details)
}

// GetUserID extracts the authenticated user id from a context.
func GetUserID(ctx context.Context) string {
	return logging.GetUserID(ctx)
}

// RequireUserID middleware ensures user ID is present in context.
func RequireUserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logging.GetUserID(r.Context()) == "" {
			httputil.Unauthorized(w, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
