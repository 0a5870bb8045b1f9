package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/planboard/planboard/app/models"
	"github.com/planboard/planboard/app/repository"
	"github.com/planboard/planboard/internal/pkg/usercontext"
)

// Identity headers asserted by the fronting identity provider. Requests
// reach this service only after the auth proxy has verified the session.
const (
	HeaderAuthEmail = "X-Auth-Email"
	HeaderAuthName  = "X-Auth-Name"
)

// UserContextMiddleware maps the identity asserted by the external auth
// layer onto the local user record, provisioning one on first sight.
// Requests without an identity header pass through as anonymous;
// route-level guards decide whether that is acceptable.
func UserContextMiddleware(c *fiber.Ctx) error {
	email := strings.ToLower(strings.TrimSpace(c.Get(HeaderAuthEmail)))
	if email == "" {
		c.Locals(usercontext.ContextKey, usercontext.UserContext{IsLoggedIn: false})
		return c.Next()
	}

	userCtx := usercontext.UserContext{
		Email:      email,
		Name:       strings.TrimSpace(c.Get(HeaderAuthName)),
		IsLoggedIn: true,
	}

	users := repository.GetGlobalFactory().GetUserRepository()
	user, err := users.GetByEmail(email)
	switch {
	case err == nil:
		userCtx.UserID = user.ID
		if userCtx.Name == "" {
			userCtx.Name = user.Name
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if provisioned := provisionUser(users, email, userCtx.Name); provisioned != nil {
			userCtx.UserID = provisioned.ID
		}
	default:
		log.Errorf("user lookup failed for %s: %v", email, err)
	}

	c.Locals(usercontext.ContextKey, userCtx)
	return c.Next()
}

// provisionUser creates the local record for an identity the auth proxy
// vouches for but we have not seen yet. Sign-in stays with the identity
// provider, so the password is a random placeholder that satisfies
// validation but is never used for login.
func provisionUser(users repository.UserRepository, email, name string) *models.User {
	if name == "" {
		name = strings.SplitN(email, "@", 2)[0]
	}
	if len(name) < 3 {
		name = "User"
	}
	placeholder := fmt.Sprintf("idp_%d", time.Now().UnixNano())

	user, err := models.CreateUser(name, email, placeholder)
	if err != nil {
		log.Errorf("failed to build user record for %s: %v", email, err)
		return nil
	}
	if err := users.Create(user); err != nil {
		log.Errorf("failed to provision user %s: %v", email, err)
		return nil
	}
	log.Infof("provisioned user %d for %s", user.ID, email)
	return user
}

// RequireLogin rejects anonymous requests on protected routes.
func RequireLogin(c *fiber.Ctx) error {
	if !usercontext.IsLoggedIn(c) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	}
	return c.Next()
}
