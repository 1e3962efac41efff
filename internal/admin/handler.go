package admin

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"unipanel-backend/internal/auth"
	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/store"
)

// Handler serves the meta surface: projects, entity definitions, fields,
// admins and their project roles. Definition and field mutations trigger
// auto-migration and a registry reload.
type Handler struct {
	store    *store.Store
	registry *schema.Registry
	migrator *store.Migrator
	roles    *auth.RoleResolver
}

func NewHandler(s *store.Store, reg *schema.Registry, mig *store.Migrator, roles *auth.RoleResolver) *Handler {
	return &Handler{store: s, registry: reg, migrator: mig, roles: roles}
}

// RegisterRoutes mounts the meta surface. readGate/writeGate are the
// project role gates; the admins surface is super-admin only.
func RegisterRoutes(app *fiber.App, h *Handler, authMW, readGate, writeGate, superAdminMW fiber.Handler) {
	grp := app.Group("/api/_admin", authMW)

	grp.Get("/projects", h.ListProjects)
	grp.Post("/projects", superAdminMW, h.CreateProject)
	grp.Put("/projects/:projectId", writeGate, h.UpdateProject)
	grp.Delete("/projects/:projectId", superAdminMW, h.DeleteProject)

	defs := grp.Group("/projects/:projectId/entity-definitions")
	defs.Get("/", readGate, h.ListDefinitions)
	defs.Get("/:defId", readGate, h.GetDefinition)
	defs.Post("/", writeGate, h.CreateDefinition)
	defs.Put("/:defId", writeGate, h.UpdateDefinition)
	defs.Delete("/:defId", writeGate, h.DeleteDefinition)

	fields := grp.Group("/projects/:projectId/entity-definitions/:defId/fields")
	fields.Get("/", readGate, h.ListFields)
	fields.Post("/", writeGate, h.CreateField)
	fields.Put("/:fieldId", writeGate, h.UpdateField)
	fields.Delete("/:fieldId", writeGate, h.DeleteField)

	admins := grp.Group("/admins", superAdminMW)
	admins.Get("/", h.ListAdmins)
	admins.Post("/", h.CreateAdmin)
	admins.Put("/:adminId", h.UpdateAdmin)
	admins.Delete("/:adminId", h.DeleteAdmin)
	admins.Put("/:adminId/roles/:projectId", h.AssignRole)
	admins.Delete("/:adminId/roles/:projectId", h.RemoveRole)
}

// --- Projects ---

func (h *Handler) ListProjects(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.Pool,
		"SELECT id, name, description, created_at, updated_at FROM _projects ORDER BY name")
	if err != nil {
		return fmt.Errorf("list projects: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) CreateProject(c *fiber.Ctx) error {
	var project schema.Project
	if err := c.BodyParser(&project); err != nil {
		return invalidPayload(c)
	}
	if project.Name == "" {
		return validationFailed(c, "Project name is required")
	}

	project.ID = uuid.New().String()
	_, err := store.Exec(c.Context(), h.store.Pool,
		"INSERT INTO _projects (id, name, description) VALUES ($1, $2, $3)",
		project.ID, project.Name, project.Description)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return conflict(c, "Project already exists: "+project.Name)
		}
		return fmt.Errorf("insert project: %w", err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": project})
}

func (h *Handler) UpdateProject(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if h.registry.GetProject(projectID) == nil {
		return notFound(c, "Project not found: "+projectID)
	}

	var body schema.Project
	if err := c.BodyParser(&body); err != nil {
		return invalidPayload(c)
	}
	if body.Name == "" {
		return validationFailed(c, "Project name is required")
	}

	_, err := store.Exec(c.Context(), h.store.Pool,
		"UPDATE _projects SET name = $1, description = $2, updated_at = NOW() WHERE id = $3",
		body.Name, body.Description, projectID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	body.ID = projectID
	return c.JSON(fiber.Map{"data": body})
}

func (h *Handler) DeleteProject(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	affected, err := store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _projects WHERE id = $1", projectID)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if affected == 0 {
		return notFound(c, "Project not found: "+projectID)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": projectID}})
}

// --- Entity definitions ---

func (h *Handler) ListDefinitions(c *fiber.Ctx) error {
	defs := h.registry.DefinitionsForProject(c.Params("projectId"))
	if defs == nil {
		defs = []*schema.EntityDefinition{}
	}
	return c.JSON(fiber.Map{"data": defs})
}

func (h *Handler) GetDefinition(c *fiber.Ctx) error {
	def := h.definitionInProject(c)
	if def == nil {
		return notFound(c, "Entity definition not found: "+c.Params("defId"))
	}
	fields := h.registry.FieldsFor(def.ID)
	return c.JSON(fiber.Map{"data": fiber.Map{"entityDefinition": def, "fields": fields}})
}

func (h *Handler) CreateDefinition(c *fiber.Ctx) error {
	projectID := c.Params("projectId")
	if h.registry.GetProject(projectID) == nil {
		return notFound(c, "Project not found: "+projectID)
	}

	var def schema.EntityDefinition
	if err := c.BodyParser(&def); err != nil {
		return invalidPayload(c)
	}
	def.ID = uuid.New().String()
	def.ProjectID = projectID

	if err := validateDefinition(&def); err != nil {
		return validationFailed(c, err.Error())
	}
	if h.registry.GetDefinitionByURL(projectID, def.URL) != nil {
		return conflict(c, "Entity definition already exists: "+def.URL)
	}

	_, err := store.Exec(c.Context(), h.store.Pool,
		`INSERT INTO _entity_definitions (id, project_id, name, table_name, url, type, description)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		def.ID, def.ProjectID, def.Name, def.TableName, def.URL, def.Type, def.Description)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return conflict(c, "Entity definition already exists: "+def.URL)
		}
		return fmt.Errorf("insert definition: %w", err)
	}

	if err := h.migrator.Migrate(c.Context(), &def, nil); err != nil {
		return fmt.Errorf("migrate %s: %w", def.TableName, err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": def})
}

func (h *Handler) UpdateDefinition(c *fiber.Ctx) error {
	existing := h.definitionInProject(c)
	if existing == nil {
		return notFound(c, "Entity definition not found: "+c.Params("defId"))
	}

	var body schema.EntityDefinition
	if err := c.BodyParser(&body); err != nil {
		return invalidPayload(c)
	}

	// Identity (id, tableName) is immutable; only presentation fields move.
	updated := *existing
	updated.Name = body.Name
	updated.URL = body.URL
	updated.Type = body.Type
	updated.Description = body.Description

	if err := validateDefinition(&updated); err != nil {
		return validationFailed(c, err.Error())
	}

	_, err := store.Exec(c.Context(), h.store.Pool,
		`UPDATE _entity_definitions SET name = $1, url = $2, type = $3, description = $4, updated_at = NOW()
		 WHERE id = $5`,
		updated.Name, updated.URL, updated.Type, updated.Description, updated.ID)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return conflict(c, "URL already in use: "+updated.URL)
		}
		return fmt.Errorf("update definition: %w", err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": updated})
}

func (h *Handler) DeleteDefinition(c *fiber.Ctx) error {
	def := h.definitionInProject(c)
	if def == nil {
		return notFound(c, "Entity definition not found: "+c.Params("defId"))
	}

	// Fields cascade via FK; the instance table is left behind on purpose —
	// dropping data tables is an operator decision, not an API side effect.
	_, err := store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _entity_definitions WHERE id = $1", def.ID)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": def.ID}})
}

// --- Fields ---

func (h *Handler) ListFields(c *fiber.Ctx) error {
	def := h.definitionInProject(c)
	if def == nil {
		return notFound(c, "Entity definition not found: "+c.Params("defId"))
	}
	fields := h.registry.FieldsFor(def.ID)
	if fields == nil {
		fields = schema.FieldList{}
	}
	return c.JSON(fiber.Map{"data": fields})
}

func (h *Handler) CreateField(c *fiber.Ctx) error {
	def := h.definitionInProject(c)
	if def == nil {
		return notFound(c, "Entity definition not found: "+c.Params("defId"))
	}

	var field schema.Field
	if err := c.BodyParser(&field); err != nil {
		return invalidPayload(c)
	}
	field.ID = uuid.New().String()
	field.EntityDefinitionID = def.ID

	existing := h.registry.FieldsFor(def.ID)
	if err := validateField(h.registry, def, existing, &field); err != nil {
		return validationFailed(c, err.Error())
	}
	if existing.Has(field.Name) {
		return conflict(c, "Field already exists: "+field.Name)
	}

	if err := h.insertField(c.Context(), def, &field); err != nil {
		// The registry check above can be stale under concurrent
		// creates; the table's unique constraint is the authority.
		if store.IsUniqueViolation(err) {
			return conflict(c, "Field already exists: "+field.Name)
		}
		return err
	}

	if err := h.migrator.Migrate(c.Context(), def, append(existing, field)); err != nil {
		return fmt.Errorf("migrate %s: %w", def.TableName, err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.Status(201).JSON(fiber.Map{"data": field})
}

func (h *Handler) UpdateField(c *fiber.Ctx) error {
	def := h.definitionInProject(c)
	if def == nil {
		return notFound(c, "Entity definition not found: "+c.Params("defId"))
	}

	fieldID := c.Params("fieldId")
	existing := h.registry.FieldsFor(def.ID)
	var current *schema.Field
	for i := range existing {
		if existing[i].ID == fieldID {
			current = &existing[i]
			break
		}
	}
	if current == nil {
		return notFound(c, "Field not found: "+fieldID)
	}

	var field schema.Field
	if err := c.BodyParser(&field); err != nil {
		return invalidPayload(c)
	}
	field.ID = current.ID
	field.EntityDefinitionID = def.ID
	// The storage key is immutable; renaming is delete-and-recreate.
	field.Name = current.Name

	others := make(schema.FieldList, 0, len(existing)-1)
	for _, f := range existing {
		if f.ID != fieldID {
			others = append(others, f)
		}
	}
	if err := validateField(h.registry, def, others, &field); err != nil {
		return validationFailed(c, err.Error())
	}

	defJSON, err := json.Marshal(field)
	if err != nil {
		return fmt.Errorf("marshal field: %w", err)
	}
	_, err = store.Exec(c.Context(), h.store.Pool,
		"UPDATE _fields SET definition = $1, sort_order = $2, updated_at = NOW() WHERE id = $3",
		defJSON, field.Order, field.ID)
	if err != nil {
		return fmt.Errorf("update field: %w", err)
	}

	if err := h.migrator.Migrate(c.Context(), def, append(others, field)); err != nil {
		return fmt.Errorf("migrate %s: %w", def.TableName, err)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": field})
}

func (h *Handler) DeleteField(c *fiber.Ctx) error {
	def := h.definitionInProject(c)
	if def == nil {
		return notFound(c, "Entity definition not found: "+c.Params("defId"))
	}

	fieldID := c.Params("fieldId")
	affected, err := store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _fields WHERE id = $1 AND entity_definition_id = $2", fieldID, def.ID)
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	if affected == 0 {
		return notFound(c, "Field not found: "+fieldID)
	}

	if err := h.reload(c); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": fieldID}})
}

// --- Admins ---

func (h *Handler) ListAdmins(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.Pool,
		"SELECT id, email, super_admin, active, created_at, updated_at FROM _admins ORDER BY email")
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) CreateAdmin(c *fiber.Ctx) error {
	var body struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		SuperAdmin bool   `json:"superAdmin"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidPayload(c)
	}
	if body.Email == "" || body.Password == "" {
		return validationFailed(c, "Email and password are required")
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	id := uuid.New().String()
	_, err = store.Exec(c.Context(), h.store.Pool,
		"INSERT INTO _admins (id, email, password_hash, super_admin) VALUES ($1, $2, $3, $4)",
		id, body.Email, hash, body.SuperAdmin)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return conflict(c, "Admin already exists: "+body.Email)
		}
		return fmt.Errorf("insert admin: %w", err)
	}

	return c.Status(201).JSON(fiber.Map{"data": fiber.Map{
		"id": id, "email": body.Email, "superAdmin": body.SuperAdmin,
	}})
}

func (h *Handler) UpdateAdmin(c *fiber.Ctx) error {
	adminID := c.Params("adminId")
	var body struct {
		Email      *string `json:"email"`
		Password   *string `json:"password"`
		SuperAdmin *bool   `json:"superAdmin"`
		Active     *bool   `json:"active"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidPayload(c)
	}

	row, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT id, email, password_hash, super_admin, active FROM _admins WHERE id = $1", adminID)
	if err != nil {
		return notFound(c, "Admin not found: "+adminID)
	}

	email, _ := row["email"].(string)
	hash, _ := row["password_hash"].(string)
	superAdmin, _ := row["super_admin"].(bool)
	active, _ := row["active"].(bool)

	if body.Email != nil {
		email = *body.Email
	}
	if body.Password != nil {
		if hash, err = auth.HashPassword(*body.Password); err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
	}
	if body.SuperAdmin != nil {
		superAdmin = *body.SuperAdmin
	}
	if body.Active != nil {
		active = *body.Active
	}

	_, err = store.Exec(c.Context(), h.store.Pool,
		"UPDATE _admins SET email = $1, password_hash = $2, super_admin = $3, active = $4, updated_at = NOW() WHERE id = $5",
		email, hash, superAdmin, active, adminID)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return conflict(c, "Admin already exists: "+email)
		}
		return fmt.Errorf("update admin: %w", err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{
		"id": adminID, "email": email, "superAdmin": superAdmin, "active": active,
	}})
}

func (h *Handler) DeleteAdmin(c *fiber.Ctx) error {
	adminID := c.Params("adminId")
	affected, err := store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _admins WHERE id = $1", adminID)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	if affected == 0 {
		return notFound(c, "Admin not found: "+adminID)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": adminID}})
}

// AssignRole upserts an admin's role for one project.
func (h *Handler) AssignRole(c *fiber.Ctx) error {
	adminID := c.Params("adminId")
	projectID := c.Params("projectId")

	var body struct {
		Role string `json:"role"`
	}
	if err := c.BodyParser(&body); err != nil {
		return invalidPayload(c)
	}
	role := schema.Role(body.Role)
	if role != schema.RoleProjectAdmin && role != schema.RoleProjectSuperAdmin {
		return validationFailed(c, "Role must be projectAdmin or projectSuperAdmin")
	}

	_, err := store.Exec(c.Context(), h.store.Pool,
		`INSERT INTO _admin_roles (admin_id, project_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (admin_id, project_id) DO UPDATE SET role = $3, updated_at = NOW()`,
		adminID, projectID, string(role))
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}

	h.roles.Invalidate(adminID, projectID)
	return c.JSON(fiber.Map{"data": fiber.Map{
		"adminId": adminID, "projectId": projectID, "role": role,
	}})
}

func (h *Handler) RemoveRole(c *fiber.Ctx) error {
	adminID := c.Params("adminId")
	projectID := c.Params("projectId")

	affected, err := store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _admin_roles WHERE admin_id = $1 AND project_id = $2", adminID, projectID)
	if err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	if affected == 0 {
		return notFound(c, "Role assignment not found")
	}

	h.roles.Invalidate(adminID, projectID)
	return c.JSON(fiber.Map{"data": fiber.Map{"adminId": adminID, "projectId": projectID}})
}

// --- helpers ---

func (h *Handler) definitionInProject(c *fiber.Ctx) *schema.EntityDefinition {
	def := h.registry.GetDefinition(c.Params("defId"))
	if def == nil || def.ProjectID != c.Params("projectId") {
		return nil
	}
	return def
}

// insertField writes the field row. A unique violation is returned
// wrapped, not handled here: the caller owns the HTTP response.
func (h *Handler) insertField(ctx context.Context, def *schema.EntityDefinition, field *schema.Field) error {
	defJSON, err := json.Marshal(field)
	if err != nil {
		return fmt.Errorf("marshal field: %w", err)
	}
	_, err = store.Exec(ctx, h.store.Pool,
		"INSERT INTO _fields (id, entity_definition_id, name, definition, sort_order) VALUES ($1, $2, $3, $4, $5)",
		field.ID, def.ID, field.Name, defJSON, field.Order)
	if err != nil {
		return fmt.Errorf("insert field: %w", err)
	}
	return nil
}

func (h *Handler) reload(c *fiber.Ctx) error {
	if err := schema.Reload(c.Context(), h.store.Pool, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return nil
}

func invalidPayload(c *fiber.Ctx) error {
	return c.Status(400).JSON(fiber.Map{"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": "Invalid JSON body"}})
}

func validationFailed(c *fiber.Ctx, msg string) error {
	return c.Status(422).JSON(fiber.Map{"error": fiber.Map{"code": "VALIDATION_FAILED", "message": msg}})
}

func conflict(c *fiber.Ctx, msg string) error {
	return c.Status(409).JSON(fiber.Map{"error": fiber.Map{"code": "CONFLICT", "message": msg}})
}

func notFound(c *fiber.Ctx, msg string) error {
	return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": msg}})
}
