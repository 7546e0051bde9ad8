package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/feast-field/api/internal/domain"
	"github.com/feast-field/api/internal/platform/httpx"
)

const (
	roleClaim     = "role"
	usernameClaim = "username"

	defaultTokenTTL = 24 * time.Hour
)

var (
	// ErrTokenExpired signals that the provided session token has expired.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid signals that the provided session token is invalid.
	ErrTokenInvalid = errors.New("auth: token invalid")
)

var knownRoles = map[domain.Role]struct{}{
	domain.RoleCustomer: {},
	domain.RoleMerchant: {},
	domain.RoleShipper:  {},
	domain.RoleAdmin:    {},
}

// Authenticator verifies HMAC-signed session tokens issued by the identity
// provider and turns them into request-scoped identities.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator constructs an Authenticator around the shared HMAC secret.
func NewAuthenticator(secret []byte) (*Authenticator, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: token secret is required")
	}
	return &Authenticator{secret: secret}, nil
}

// Verify parses and validates a raw token, returning the embedded identity.
func (a *Authenticator) Verify(rawToken string) (*Identity, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrTokenInvalid, t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}

	subject, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(subject), 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: malformed subject", ErrTokenInvalid)
	}

	role, _ := claims[roleClaim].(string)
	parsedRole := domain.Role(strings.ToLower(strings.TrimSpace(role)))
	if _, ok := knownRoles[parsedRole]; !ok {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, role)
	}

	username, _ := claims[usernameClaim].(string)

	return &Identity{
		UserID:   userID,
		Username: strings.TrimSpace(username),
		Role:     parsedRole,
	}, nil
}

// IssueToken mints a signed session token. The identity provider is the normal
// issuer in production; this is used by tooling and tests.
func (a *Authenticator) IssueToken(identity Identity, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = defaultTokenTTL
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":         strconv.FormatInt(identity.UserID, 10),
		usernameClaim: identity.Username,
		roleClaim:     string(identity.Role),
		"iat":         now.Unix(),
		"exp":         now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// RequireAuth verifies the Authorization bearer token and, when roles are
// given, ensures the caller holds one of them. Admins always pass role checks.
func (a *Authenticator) RequireAuth(allowedRoles ...domain.Role) func(http.Handler) http.Handler {
	allowed := make(map[domain.Role]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw := bearerToken(r)
			if raw == "" {
				httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
				return
			}

			identity, err := a.Verify(raw)
			if err != nil {
				code := "token_invalid"
				if errors.Is(err, ErrTokenExpired) {
					code = "token_expired"
				}
				httpx.WriteError(ctx, w, httpx.NewError(code, "authentication failed", http.StatusUnauthorized))
				return
			}

			if len(allowed) > 0 && !identity.IsAdmin() {
				if _, ok := allowed[identity.Role]; !ok {
					httpx.WriteError(ctx, w, httpx.Forbidden("insufficient role"))
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, identity)))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
