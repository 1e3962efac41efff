package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"unipanel-backend/internal/engine"
	"unipanel-backend/internal/schema"
)

// LoginRoute is where unauthenticated requests are sent. Auth failures
// redirect rather than render a raw error.
const LoginRoute = "/login"

// Middleware validates the bearer token and sets the UserContext on the
// request. Requests without a valid token are redirected to the login
// route.
func Middleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Redirect(LoginRoute, fiber.StatusFound)
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return c.Redirect(LoginRoute, fiber.StatusFound)
		}

		// A malformed or expired token is the same as no token: the
		// caller is unauthenticated and goes to login.
		claims, err := ParseAccessToken(parts[1], secret)
		if err != nil {
			return c.Redirect(LoginRoute, fiber.StatusFound)
		}

		c.Locals("user", &schema.UserContext{
			ID:         claims.Subject,
			Email:      claims.Email,
			SuperAdmin: claims.SuperAdmin,
		})

		return c.Next()
	}
}

// RequireProjectRole gates a project-scoped route on a minimum role.
// An insufficient role never sees an error page: the request is sent to
// the project's read-only landing route instead.
func RequireProjectRole(resolver *RoleResolver, min schema.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return c.Redirect(LoginRoute, fiber.StatusFound)
		}

		projectID := c.Params("projectId")
		role, err := resolver.Resolve(c.Context(), user.ID, projectID)
		if err != nil {
			return engine.BackendError("Failed to resolve role")
		}

		if !role.AtLeast(min) {
			return c.Redirect("/projects/"+projectID, fiber.StatusSeeOther)
		}

		c.Locals("role", role)
		return c.Next()
	}
}

// RequireSuperAdmin gates routes that only the global super admin may see,
// such as the admins surface.
func RequireSuperAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetUser(c)
		if user == nil {
			return c.Redirect(LoginRoute, fiber.StatusFound)
		}
		if !user.SuperAdmin {
			return engine.ForbiddenError("Super admin access required")
		}
		return c.Next()
	}
}

// GetUser extracts the UserContext from a Fiber context.
func GetUser(c *fiber.Ctx) *schema.UserContext {
	user, _ := c.Locals("user").(*schema.UserContext)
	return user
}

// GetRole extracts the resolved project role from a Fiber context.
// Returns RoleNone when no gate ran on the route.
func GetRole(c *fiber.Ctx) schema.Role {
	role, _ := c.Locals("role").(schema.Role)
	return role
}
