package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/raulancona/gourmetclick/pkg/middleware"
)

// Application roles carried in app_metadata.role.
const (
	RoleOwner = "owner"
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// AppMetadata is the server-controlled part of a Supabase user.
type AppMetadata struct {
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}

// Claims are the claims of a Supabase access token.
type Claims struct {
	Email       string      `json:"email"`
	Role        string      `json:"role"`
	AppMetadata AppMetadata `json:"app_metadata"`
	jwt.RegisteredClaims
}

// SupabaseValidator validates HS256 access tokens issued by Supabase Auth.
type SupabaseValidator struct {
	secret   []byte
	audience string
}

// NewSupabaseValidator creates a validator for the project's JWT secret.
// Tokens must carry audience when it is not empty.
func NewSupabaseValidator(secret, audience string) *SupabaseValidator {
	return &SupabaseValidator{secret: []byte(secret), audience: audience}
}

// Validate parses tokenString and maps it onto request claims. Owners sign up
// without a tenant_id and own the tenant keyed by their user id.
func (v *SupabaseValidator) Validate(tokenString string) (*middleware.Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid access token claims")
	}
	if claims.Subject == "" {
		return nil, errors.New("access token has no subject")
	}

	role := claims.AppMetadata.Role
	if role == "" {
		role = RoleOwner
	}
	tenantID := claims.AppMetadata.TenantID
	if tenantID == "" {
		tenantID = claims.Subject
	}
	return &middleware.Claims{
		UserID:   claims.Subject,
		Email:    claims.Email,
		Role:     role,
		TenantID: tenantID,
	}, nil
}

// TokenValidator adapts v to the auth middleware.
func (v *SupabaseValidator) TokenValidator() middleware.TokenValidator {
	return v.Validate
}
