package engine

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"unipanel-backend/internal/schema"
)

func isAppError(err error, target **AppError) bool {
	return errors.As(err, target)
}

// resolve must fail with the 404-shaped error for an unknown definition and
// for a definition that belongs to another project, so tenant scoping holds
// even when the id is guessable.
func TestResolve_UnknownDefinition(t *testing.T) {
	reg := schema.NewRegistry()
	reg.Load(
		[]*schema.Project{{ID: "p1"}, {ID: "p2"}},
		[]*schema.EntityDefinition{
			{ID: "d1", ProjectID: "p1", Name: "Customer", TableName: "customers", URL: "customers"},
		},
		nil,
	)

	h := &Handler{registry: reg}

	app := fiber.New()
	app.Get("/api/projects/:projectId/entities/:defId", func(c *fiber.Ctx) error {
		res, err := h.resolve(c)
		if err != nil {
			var appErr *AppError
			if !isAppError(err, &appErr) {
				t.Fatalf("expected *AppError, got %T: %v", err, err)
			}
			if appErr.Code != "NOT_FOUND" {
				t.Fatalf("expected code NOT_FOUND, got %s", appErr.Code)
			}
			return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
		}
		return c.JSON(fiber.Map{"name": res.Definition.Name})
	})

	for _, path := range []string{
		"/api/projects/p1/entities/nonexistent",
		"/api/projects/p2/entities/d1", // d1 belongs to p1
	} {
		req, _ := http.NewRequest("GET", path, nil)
		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("%s: request failed: %v", path, err)
		}
		if resp.StatusCode != 404 {
			t.Fatalf("%s: expected 404, got %d", path, resp.StatusCode)
		}
	}

	req, _ := http.NewRequest("GET", "/api/projects/p1/entities/d1", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200 for known definition, got %d", resp.StatusCode)
	}
}

func TestAudience_MapsRole(t *testing.T) {
	app := fiber.New()

	var got Audience
	app.Get("/x", func(c *fiber.Ctx) error {
		c.Locals("role", schema.RoleSuperAdmin)
		got = audience(c)
		return c.SendStatus(200)
	})
	req, _ := http.NewRequest("GET", "/x", nil)
	app.Test(req, -1)
	if got != AudienceSa {
		t.Fatalf("superAdmin must map to sa, got %s", got)
	}

	app = fiber.New()
	app.Get("/x", func(c *fiber.Ctx) error {
		c.Locals("role", schema.RoleProjectSuperAdmin)
		got = audience(c)
		return c.SendStatus(200)
	})
	req, _ = http.NewRequest("GET", "/x", nil)
	app.Test(req, -1)
	if got != AudiencePma {
		t.Fatalf("projectSuperAdmin must map to pma, got %s", got)
	}
}

// Mutation failures always come back as {success:false, error}; unexpected
// errors are masked as a backend failure instead of leaking internals.
func TestRespondMutationError_Envelope(t *testing.T) {
	app := fiber.New()
	app.Post("/app-error", func(c *fiber.Ctx) error {
		return respondMutationError(c, ValidationError([]ErrorDetail{
			{Field: "title", Rule: "required", Message: "This field is required"},
		}))
	})
	app.Post("/raw-error", func(c *fiber.Ctx) error {
		return respondMutationError(c, errors.New("pq: connection reset"))
	})

	req, _ := http.NewRequest("POST", "/app-error", nil)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
	env := decodeEnvelope(t, resp)
	if env.Success {
		t.Fatal("expected success=false")
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected VALIDATION_FAILED, got %+v", env.Error)
	}
	if len(env.Error.Details) != 1 || env.Error.Details[0].Field != "title" {
		t.Fatalf("expected field detail, got %+v", env.Error.Details)
	}

	req, _ = http.NewRequest("POST", "/raw-error", nil)
	resp, err = app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 500 {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	env = decodeEnvelope(t, resp)
	if env.Success || env.Error == nil || env.Error.Code != "BACKEND_ERROR" {
		t.Fatalf("expected masked BACKEND_ERROR, got %+v", env.Error)
	}
	if env.Error.Message == "pq: connection reset" {
		t.Fatal("raw error message must not leak to the caller")
	}
}

func decodeEnvelope(t *testing.T, resp *http.Response) Envelope {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		t.Fatalf("decode envelope: %v (%s)", err, body)
	}
	return env
}
