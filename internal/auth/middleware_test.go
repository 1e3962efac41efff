package auth

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"unipanel-backend/internal/cache"
	"unipanel-backend/internal/schema"
)

// fakeResolver returns a RoleResolver whose lookups come from a map
// instead of the database.
func fakeResolver(roles map[roleKey]schema.Role) *RoleResolver {
	r := &RoleResolver{}
	r.cache = cache.New(time.Minute, time.Minute, func(ctx context.Context, key roleKey) (schema.Role, error) {
		return roles[key], nil
	})
	return r
}

func gateApp(t *testing.T, secret string, resolver *RoleResolver, min schema.Role) *fiber.App {
	t.Helper()
	app := fiber.New()
	app.Get("/projects/:projectId/edit",
		Middleware(secret),
		RequireProjectRole(resolver, min),
		func(c *fiber.Ctx) error {
			return c.JSON(fiber.Map{"role": GetRole(c)})
		})
	return app
}

func bearer(t *testing.T, secret, adminID string, superAdmin bool) string {
	t.Helper()
	token, err := GenerateAccessToken(adminID, adminID+"@example.com", superAdmin, secret)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return "Bearer " + token
}

func TestMiddleware_MissingTokenRedirectsToLogin(t *testing.T) {
	app := gateApp(t, "s", fakeResolver(nil), schema.RoleProjectAdmin)

	req, _ := http.NewRequest("GET", "/projects/p1/edit", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 302 {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != LoginRoute {
		t.Fatalf("expected redirect to %s, got %s", LoginRoute, loc)
	}
}

// Garbage, expired and malformed-header tokens all mean the same thing:
// the caller is not authenticated and goes to login.
func TestMiddleware_InvalidTokenRedirectsToLogin(t *testing.T) {
	app := gateApp(t, "s", fakeResolver(nil), schema.RoleProjectAdmin)

	wrongKey, err := GenerateAccessToken("a1", "a1@example.com", false, "wrong-secret")
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	for _, header := range []string{
		"Bearer garbage",
		"Bearer " + wrongKey,
		"not-a-bearer-header",
	} {
		req, _ := http.NewRequest("GET", "/projects/p1/edit", nil)
		req.Header.Set("Authorization", header)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("%q: request failed: %v", header, err)
		}
		if resp.StatusCode != 302 {
			t.Fatalf("%q: expected 302, got %d", header, resp.StatusCode)
		}
		if loc := resp.Header.Get("Location"); loc != LoginRoute {
			t.Fatalf("%q: expected redirect to %s, got %s", header, LoginRoute, loc)
		}
	}
}

// A project admin may read but not mutate: the mutation gate sends them
// back to the project landing page instead of erroring.
func TestRequireProjectRole_InsufficientRoleRedirects(t *testing.T) {
	secret := "s"
	resolver := fakeResolver(map[roleKey]schema.Role{
		{AdminID: "a1", ProjectID: "p1"}: schema.RoleProjectAdmin,
	})
	app := gateApp(t, secret, resolver, schema.RoleProjectSuperAdmin)

	req, _ := http.NewRequest("GET", "/projects/p1/edit", nil)
	req.Header.Set("Authorization", bearer(t, secret, "a1", false))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 303 {
		t.Fatalf("expected 303, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/projects/p1" {
		t.Fatalf("expected redirect to /projects/p1, got %s", loc)
	}
}

func TestRequireProjectRole_SufficientRolePasses(t *testing.T) {
	secret := "s"
	resolver := fakeResolver(map[roleKey]schema.Role{
		{AdminID: "a1", ProjectID: "p1"}: schema.RoleProjectSuperAdmin,
	})
	app := gateApp(t, secret, resolver, schema.RoleProjectSuperAdmin)

	req, _ := http.NewRequest("GET", "/projects/p1/edit", nil)
	req.Header.Set("Authorization", bearer(t, secret, "a1", false))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestRequireProjectRole_RoleIsProjectScoped(t *testing.T) {
	secret := "s"
	resolver := fakeResolver(map[roleKey]schema.Role{
		{AdminID: "a1", ProjectID: "p1"}: schema.RoleProjectSuperAdmin,
		// No role for p2.
	})
	app := gateApp(t, secret, resolver, schema.RoleProjectAdmin)

	req, _ := http.NewRequest("GET", "/projects/p2/edit", nil)
	req.Header.Set("Authorization", bearer(t, secret, "a1", false))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 303 {
		t.Fatalf("expected 303 for project without a role, got %d", resp.StatusCode)
	}
}

func TestRequireSuperAdmin(t *testing.T) {
	secret := "s"
	app := fiber.New()
	app.Get("/admins", Middleware(secret), RequireSuperAdmin(), func(c *fiber.Ctx) error {
		return c.SendStatus(200)
	})

	req, _ := http.NewRequest("GET", "/admins", nil)
	req.Header.Set("Authorization", bearer(t, secret, "a1", true))
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("super admin: expected 200, got %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("GET", "/admins", nil)
	req.Header.Set("Authorization", bearer(t, secret, "a2", false))
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode == 200 {
		t.Fatal("non-super admin must not reach the admins surface")
	}
}
