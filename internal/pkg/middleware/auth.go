package middleware

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/cuidarte/crm/app/repository"
	"github.com/cuidarte/crm/internal/pkg/env"
	"github.com/cuidarte/crm/internal/pkg/permissions"
	"github.com/cuidarte/crm/internal/pkg/usercontext"
)

// SupabaseClaims are the claims of a Supabase access token.
type SupabaseClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTAuth verifies HS256 bearer tokens signed with secret and loads the
// staff member named by the sub claim, falling back to the email claim.
func JWTAuth(secret []byte, users repository.UserRepository) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := extractBearerToken(c)
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing bearer token"})
		}

		var claims SupabaseClaims
		token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(30*time.Second),
		)
		if err != nil || !token.Valid {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid token"})
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid token subject"})
		}

		user, err := users.GetByID(c.UserContext(), userID)
		if errors.Is(err, gorm.ErrRecordNotFound) && claims.Email != "" {
			// Staff rows created before auth accounts keep their own ids.
			user, err = users.GetByEmail(c.UserContext(), strings.ToLower(claims.Email))
		}
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "No staff profile for this account"})
			}
			log.Errorf("[Auth] user lookup failed for %s: %v", userID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "User verification failed"})
		}

		isAdmin := permissions.IsAdmin(user.Role)
		c.Locals(usercontext.LocalsKey, usercontext.UserContext{
			UserID:     user.ID,
			Name:       user.Name,
			Email:      user.Email,
			Role:       user.Role,
			IsLoggedIn: true,
			IsAdmin:    isAdmin,
		})
		c.Locals(usercontext.KeyUser, user)
		c.Locals(usercontext.KeyFromProtected, true)
		c.Locals(usercontext.KeyUserID, user.ID)
		c.Locals(usercontext.KeyRole, user.Role)
		c.Locals(usercontext.KeyIsAdmin, isAdmin)

		return c.Next()
	}
}

// SupabaseAuth builds JWTAuth from SUPABASE_JWT_SECRET and the global repositories.
func SupabaseAuth() fiber.Handler {
	secret := env.GetEnv("SUPABASE_JWT_SECRET", "")
	if secret == "" {
		log.Warn("[Auth] SUPABASE_JWT_SECRET is empty, every request will be rejected")
	}
	return JWTAuth([]byte(secret), repository.GetGlobalFactory().GetUserRepository())
}

// RequireAuth rejects requests that did not pass an auth middleware.
func RequireAuth(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
	return c.Next()
}

// RequireCapability allows the request only when the caller's role grants cap.
func RequireCapability(cap permissions.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		uc := usercontext.GetUserContext(c)
		if !uc.IsLoggedIn {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "login required"})
		}
		if !permissions.Can(uc.Role, cap) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden", "message": "insufficient permissions"})
		}
		return c.Next()
	}
}

func extractBearerToken(c *fiber.Ctx) string {
	auth := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
