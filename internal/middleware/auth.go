package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"rental/internal/domain"
)

const principalKey = "principal"

var (
	errMissingToken = errors.New("missing bearer token")
	errInvalidToken = errors.New("invalid token")
)

// Claims is the identity token issued by the account service.
type Claims struct {
	Role     string   `json:"role"`
	StoreIDs []string `json:"store_ids,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies HMAC signed bearer tokens.
type Authenticator struct {
	secret []byte
	issuer string
}

// NewAuthenticator creates a new Authenticator. An empty issuer is not checked.
func NewAuthenticator(secret, issuer string) *Authenticator {
	return &Authenticator{secret: []byte(secret), issuer: issuer}
}

// Parse verifies the token and returns the caller.
func (a *Authenticator) Parse(tokenStr string) (domain.Principal, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", errInvalidToken, err)
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || claims.Subject == "" {
		return domain.Principal{}, errInvalidToken
	}

	role := domain.Role(strings.ToUpper(claims.Role))
	if role != domain.RoleCustomer && role != domain.RoleOwner {
		return domain.Principal{}, fmt.Errorf("%w: unknown role %q", errInvalidToken, claims.Role)
	}

	return domain.Principal{UserID: claims.Subject, Role: role, StoreIDs: claims.StoreIDs}, nil
}

// Sign issues a token for the principal. Used by tests and local tooling.
func (a *Authenticator) Sign(p domain.Principal, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = p.UserID
	if a.issuer != "" {
		claims.Issuer = a.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role:             string(p.Role),
		StoreIDs:         p.StoreIDs,
		RegisteredClaims: claims,
	})
	return token.SignedString(a.secret)
}

// AuthMiddleware rejects requests without a valid bearer token and stores the
// caller on the context.
func AuthMiddleware(auth *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		tokenStr, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMissingToken.Error()})
			return
		}

		p, err := auth.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidToken.Error()})
			return
		}

		c.Set(principalKey, p)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not one of roles.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMissingToken.Error()})
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role not allowed"})
	}
}

// GetPrincipal returns the authenticated caller.
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	p, ok := v.(domain.Principal)
	return p, ok
}
