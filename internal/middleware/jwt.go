// internal/middleware/jwt.go
package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"campus-lostfound/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// Token expiration time - 24 hours
	tokenExpiration = 24 * time.Hour

	tokenIssuer = "campus-lostfound"
)

// IdentityGateway turns a bearer credential into a verified user ID.
type IdentityGateway interface {
	Resolve(credential string) (uuid.UUID, error)
}

// Claims represents the JWT claims for our application
type Claims struct {
	UserID uuid.UUID `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTGateway verifies HS256 tokens signed with a shared secret.
type JWTGateway struct {
	secret []byte
	now    func() time.Time
}

var _ IdentityGateway = (*JWTGateway)(nil)

func NewJWTGateway(secret string) *JWTGateway {
	return &JWTGateway{secret: []byte(secret), now: time.Now}
}

// GenerateToken creates a new JWT token for the given user ID. Tokens are
// normally minted by the account service; this is used by tooling and tests.
func (g *JWTGateway) GenerateToken(userID uuid.UUID) (string, error) {
	now := g.now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenExpiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
			Subject:   userID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

// Resolve validates the token and returns the user it was issued for. The
// user_id claim wins; otherwise the subject must hold the user ID.
func (g *JWTGateway) Resolve(credential string) (uuid.UUID, error) {
	if credential == "" {
		return uuid.Nil, utils.NewUnauthorizedError("missing token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(
		credential,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return g.secret, nil
		},
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, utils.NewAppError(utils.ErrInvalidToken, "token expired", err)
		}
		return uuid.Nil, utils.NewAppError(utils.ErrInvalidToken, "invalid token", err)
	}
	if !token.Valid {
		return uuid.Nil, utils.NewAppError(utils.ErrInvalidToken, "invalid token", nil)
	}

	if claims.UserID != uuid.Nil {
		return claims.UserID, nil
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, utils.NewAppError(utils.ErrInvalidToken, "token carries no user", err)
	}
	return userID, nil
}

// TokenFromRequest extracts the bearer credential from the Authorization
// header, falling back to the token query parameter used by websocket
// handshakes and image tags.
func TokenFromRequest(r *http.Request) string {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// AuthMiddleware resolves the caller's identity and stores it in the request
// context. Requests without a valid credential are rejected with 401.
func AuthMiddleware(gateway IdentityGateway, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			userID, err := gateway.Resolve(token)
			if err != nil {
				logger.Debug("authentication failed",
					zap.String("path", r.URL.Path),
					zap.String("token", utils.TokenPrefix(token)),
					zap.Error(err))
				writeAuthError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(SetUserIDInContext(r.Context(), userID)))
		})
	}
}

func writeAuthError(w http.ResponseWriter, err error) {
	appErr, ok := utils.AsAppError(err)
	if !ok {
		appErr = utils.NewUnauthorizedError("invalid credentials")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"code":    appErr.Code,
		"message": appErr.Message,
	})
}

// Define a custom context key type to avoid collisions
type contextKey string

// UserIDKey is the key used to store the user ID in the context
const UserIDKey contextKey = "user_id"

// SetUserIDInContext saves the user ID in the request context
func SetUserIDInContext(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserIDFromContext retrieves the user ID from the context
func GetUserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}
