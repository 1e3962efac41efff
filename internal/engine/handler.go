package engine

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"unipanel-backend/internal/render"
	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/store"
	"unipanel-backend/internal/uiconfig"
)

// Handler serves the dynamic instance API. It is entirely schema-driven:
// no per-entity-type code, every route interprets the resolved
// configuration for the definition named in the URL.
type Handler struct {
	store     *store.Store
	registry  *schema.Registry
	instances *Instances
	options   *render.OptionsResolver
}

func NewHandler(s *store.Store, reg *schema.Registry, options *render.OptionsResolver) *Handler {
	return &Handler{
		store:     s,
		registry:  reg,
		instances: NewInstances(s, reg),
		options:   options,
	}
}

// Config handles GET /api/projects/:projectId/entities/:defId/config
func (h *Handler) Config(c *fiber.Ctx) error {
	res, err := h.resolve(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"entityDefinition": res.Definition,
		"fields":           res.Fields,
		"uiConfig":         res.UIConfig,
	}})
}

// FormPlan handles GET /api/projects/:projectId/entities/:defId/form
func (h *Handler) FormPlan(c *fiber.Ctx) error {
	res, err := h.resolve(c)
	if err != nil {
		return err
	}

	mode := render.ModeCreate
	values := map[string]any{}

	if c.Query("mode") == string(render.ModeEdit) {
		mode = render.ModeEdit
		if instanceID := c.Query("instanceId"); instanceID != "" {
			record, err := h.instances.GetByID(c.Context(), res, instanceID)
			if err != nil {
				return respondAppError(c, err)
			}
			values = record
		}
	}

	return c.JSON(fiber.Map{"data": render.BuildFormPlan(res, mode, values)})
}

// ListPlan handles GET /api/projects/:projectId/entities/:defId/list-plan
func (h *Handler) ListPlan(c *fiber.Ctx) error {
	res, err := h.resolve(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": render.BuildListPlan(res)})
}

// List handles GET /api/projects/:projectId/entities/:defId
func (h *Handler) List(c *fiber.Ctx) error {
	res, err := h.resolve(c)
	if err != nil {
		return err
	}

	plan, err := ParseQueryParams(c, res.Definition, res.Fields)
	if err != nil {
		return err
	}

	qr := BuildSelectSQL(plan)
	rows, err := store.QueryRows(c.Context(), h.store.Pool, qr.SQL, qr.Params...)
	if err != nil {
		return err
	}

	cr := BuildCountSQL(plan)
	countRow, err := store.QueryRow(c.Context(), h.store.Pool, cr.SQL, cr.Params...)
	if err != nil {
		return err
	}
	total, _ := countRow["count"].(int64)

	if err := LoadListRelations(c.Context(), h.store.Pool, res.Definition, res.Fields, rows); err != nil {
		return err
	}

	rows = ShapeInstances(res.Fields, rows, audience(c))
	if rows == nil {
		rows = []map[string]any{}
	}

	return c.JSON(fiber.Map{
		"data": rows,
		"pagination": fiber.Map{
			"page":  plan.Page,
			"limit": plan.Limit,
			"total": total,
		},
	})
}

// GetByID handles GET /api/projects/:projectId/entities/:defId/:instanceId
func (h *Handler) GetByID(c *fiber.Ctx) error {
	res, err := h.resolve(c)
	if err != nil {
		return err
	}

	record, err := h.instances.GetByID(c.Context(), res, c.Params("instanceId"))
	if err != nil {
		return respondAppError(c, err)
	}

	return c.JSON(fiber.Map{"data": ShapeInstance(res.Fields, record, audience(c), ShapeSingle)})
}

// Options handles GET /api/projects/:projectId/entities/:defId/options
func (h *Handler) Options(c *fiber.Ctx) error {
	res, err := h.resolve(c)
	if err != nil {
		return err
	}

	result, err := h.options.Resolve(c.Context(), res.Definition.ID)
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(result)
}

// Create handles POST /api/projects/:projectId/entities/:defId
func (h *Handler) Create(c *fiber.Ctx) error {
	res, err := h.resolve(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondFailure(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	record, err := h.instances.Create(c.Context(), res, body)
	if err != nil {
		return respondMutationError(c, err)
	}

	h.options.Invalidate(res.Definition.ID)
	return c.Status(fiber.StatusCreated).JSON(Ok(record))
}

// Update handles PUT /api/projects/:projectId/entities/:defId/:instanceId
func (h *Handler) Update(c *fiber.Ctx) error {
	res, err := h.resolve(c)
	if err != nil {
		return err
	}

	var body map[string]any
	if err := c.BodyParser(&body); err != nil {
		return respondFailure(c, NewAppError("INVALID_PAYLOAD", 400, "Invalid JSON body"))
	}

	record, err := h.instances.Update(c.Context(), res, c.Params("instanceId"), body)
	if err != nil {
		return respondMutationError(c, err)
	}

	h.options.Invalidate(res.Definition.ID)
	return c.JSON(Ok(record))
}

// Delete handles DELETE /api/projects/:projectId/entities/:defId/:instanceId
func (h *Handler) Delete(c *fiber.Ctx) error {
	res, err := h.resolve(c)
	if err != nil {
		return err
	}

	id := c.Params("instanceId")
	if err := h.instances.Delete(c.Context(), res, id); err != nil {
		return respondMutationError(c, err)
	}

	h.options.Invalidate(res.Definition.ID)
	return c.JSON(Ok(fiber.Map{"id": id}))
}

// resolve loads the merged configuration for the route's project and
// definition, converting a miss into the 404-shaped AppError.
func (h *Handler) resolve(c *fiber.Ctx) (*uiconfig.Resolved, error) {
	projectID := c.Params("projectId")
	defID := c.Params("defId")

	res, err := uiconfig.Resolve(h.registry, projectID, defID)
	if err != nil {
		if errors.Is(err, schema.ErrNotFound) {
			return nil, UnknownDefinitionError(defID)
		}
		return nil, err
	}
	return res, nil
}

// audience maps the gate's resolved role to a response-shape audience.
func audience(c *fiber.Ctx) Audience {
	role, _ := c.Locals("role").(schema.Role)
	if role == schema.RoleSuperAdmin {
		return AudienceSa
	}
	return AudiencePma
}

// respondAppError surfaces read-path AppErrors with their status; anything
// else propagates to the page-level error boundary.
func respondAppError(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}
	return err
}

// respondMutationError converts any mutation failure into the
// {success:false, error} envelope. Unexpected errors are logged with
// context and reported as a backend failure, never rethrown.
func respondMutationError(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return respondFailure(c, appErr)
	}
	log.Printf("ERROR: mutation on %s %s: %v", c.Method(), c.Path(), err)
	return respondFailure(c, BackendError("Operation failed"))
}

func respondFailure(c *fiber.Ctx, appErr *AppError) error {
	return c.Status(appErr.Status).JSON(Fail(appErr))
}
