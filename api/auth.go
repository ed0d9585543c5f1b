package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/manish-vm/EGS-chitfund-management-backend/chit"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("authorization token required")
)

// JWTManager validates bearer tokens issued by the identity service.
type JWTManager struct {
	secretKey     []byte
	tokenDuration time.Duration
}

// Claims carries the caller's identity.
type Claims struct {
	UserID string    `json:"user_id"`
	Role   chit.Role `json:"role"`
	jwt.RegisteredClaims
}

func NewJWTManager(secretKey string, tokenDuration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey:     []byte(secretKey),
		tokenDuration: tokenDuration,
	}
}

// Generate signs a token for userID. Used by tests and tooling; production
// tokens come from the identity service.
func (m *JWTManager) Generate(userID string, role chit.Role) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and checks a token.
func (m *JWTManager) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// =============================================================================
// IDENTITY IN CONTEXT
// =============================================================================

type contextKey string

const (
	identityKey     contextKey = "identity"
	identitySlotKey contextKey = "identity_slot"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID string
	Role   chit.Role
}

func (id Identity) IsAdmin() bool { return id.Role == chit.RoleAdmin }

// IdentityFrom returns the caller, or the zero Identity if unauthenticated.
func IdentityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// withIdentity also fills the request logger's slot, which lives on the
// outer context and cannot see values added further down the chain.
func withIdentity(ctx context.Context, id Identity) context.Context {
	if slot, ok := ctx.Value(identitySlotKey).(*Identity); ok {
		*slot = id
	}
	return context.WithValue(ctx, identityKey, id)
}

// Authenticate puts the caller's identity in the request context. With a nil
// manager every request acts as devAdmin.
func Authenticate(m *JWTManager, devAdmin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), Identity{UserID: devAdmin, Role: chit.RoleAdmin})))
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized", ErrMissingToken)
				return
			}
			parts := strings.Split(header, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				writeError(w, http.StatusUnauthorized, "Unauthorized", ErrInvalidToken)
				return
			}
			claims, err := m.Validate(parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized", err)
				return
			}
			role := claims.Role
			if role == "" {
				role = chit.RoleMember
			}
			next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), Identity{UserID: claims.UserID, Role: role})))
		})
	}
}

// RequireRole rejects callers whose role is not in roles.
func RequireRole(roles ...chit.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := IdentityFrom(r.Context())
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Forbidden", chit.ErrForbidden)
		})
	}
}
