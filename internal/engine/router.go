package engine

import "github.com/gofiber/fiber/v2"

// RegisterDynamicRoutes mounts the schema-driven instance API. Reads are
// open to any project role; mutations sit behind the mutation gate.
func RegisterDynamicRoutes(app *fiber.App, h *Handler, authMW, readGate, writeGate fiber.Handler) {
	api := app.Group("/api/projects/:projectId/entities", authMW)

	api.Get("/:defId", readGate, h.List)
	api.Get("/:defId/config", readGate, h.Config)
	api.Get("/:defId/form", readGate, h.FormPlan)
	api.Get("/:defId/list-plan", readGate, h.ListPlan)
	api.Get("/:defId/options", readGate, h.Options)
	api.Get("/:defId/:instanceId", readGate, h.GetByID)

	api.Post("/:defId", writeGate, h.Create)
	api.Put("/:defId/:instanceId", writeGate, h.Update)
	api.Delete("/:defId/:instanceId", writeGate, h.Delete)
}
