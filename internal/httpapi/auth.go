package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/service"
)

const tokenIssuer = "retailpos"

// IdentityVerifier checks bearer tokens issued for sellers and admins.
// Issuing tokens belongs to the identity service; Sign exists for tooling and tests.
type IdentityVerifier struct {
	secret []byte
}

type identityClaims struct {
	jwtlib.RegisteredClaims
	Role       string `json:"role"`
	LocationID string `json:"location_id"`
}

func NewIdentityVerifier(secret string) *IdentityVerifier {
	return &IdentityVerifier{secret: []byte(secret)}
}

func (v *IdentityVerifier) Sign(id domain.Identity, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	now := time.Now().UTC()
	claims := identityClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			Issuer:    tokenIssuer,
		},
		Role:       string(id.Role),
		LocationID: id.LocationID,
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func (v *IdentityVerifier) Parse(tokenStr string) (domain.Identity, error) {
	claims := &identityClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithIssuer(tokenIssuer))
	if err != nil || !token.Valid {
		return domain.Identity{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || strings.TrimSpace(sub) == "" {
		return domain.Identity{}, errors.New("invalid token subject")
	}
	role := domain.Role(claims.Role)
	if role != domain.RoleAdmin && role != domain.RoleSeller {
		return domain.Identity{}, errors.New("invalid token role")
	}
	return domain.Identity{UserID: sub, Role: role, LocationID: strings.TrimSpace(claims.LocationID)}, nil
}

// requireIdentity rejects requests without a valid bearer token and stores
// the identity on the request context.
func (a *API) requireIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, r, domain.ErrUnauthorized.With("missing bearer token"))
			return
		}

		id, err := a.verifier.Parse(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			a.writeError(w, r, domain.ErrUnauthorized.With("%s", err.Error()))
			return
		}

		next.ServeHTTP(w, r.WithContext(service.WithIdentity(r.Context(), id)))
	})
}
