package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"unipanel-backend/internal/admin"
	"unipanel-backend/internal/auth"
	"unipanel-backend/internal/config"
	"unipanel-backend/internal/engine"
	"unipanel-backend/internal/render"
	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Printf("Config loaded (port: %d, db: %s:%d/%s)", cfg.Server.Port, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// 2. Connect to database
	db, err := store.New(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connected")

	// 3. Bootstrap system tables and seed the first super admin
	if err := db.Bootstrap(ctx); err != nil {
		log.Fatalf("Failed to bootstrap system tables: %v", err)
	}
	log.Println("System tables ready")

	// 4. Load the schema registry
	reg := schema.NewRegistry()
	if err := schema.LoadAll(ctx, db.Pool, reg); err != nil {
		log.Printf("WARN: Failed to load schema: %v", err)
	}

	// 5. Migrate every known entity table up to its definition
	migrator := store.NewMigrator(db)
	for _, p := range reg.AllProjects() {
		for _, def := range reg.DefinitionsForProject(p.ID) {
			if err := migrator.Migrate(ctx, def, reg.FieldsFor(def.ID)); err != nil {
				log.Fatalf("Failed to migrate %s: %v", def.TableName, err)
			}
		}
	}

	// 6. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(logger.New(logger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))

	// 7. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 8. Auth routes (before middleware — no auth required)
	authHandler := auth.NewHandler(db, cfg.JWTSecret)
	auth.RegisterRoutes(app, authHandler)

	// 9. Gates
	roles := auth.NewRoleResolver(db)
	authMW := auth.Middleware(cfg.JWTSecret)
	readGate := auth.RequireProjectRole(roles, schema.RoleProjectAdmin)
	writeGate := auth.RequireProjectRole(roles, schema.RoleProjectSuperAdmin)
	superAdminMW := auth.RequireSuperAdmin()

	// 10. Meta surface: projects, entity definitions, fields, admins
	adminHandler := admin.NewHandler(db, reg, migrator, roles)
	admin.RegisterRoutes(app, adminHandler, authMW, readGate, writeGate, superAdminMW)

	// 11. Dynamic entity routes
	options := render.NewOptionsResolver(db, reg)
	engineHandler := engine.NewHandler(db, reg, options)
	engine.RegisterDynamicRoutes(app, engineHandler, authMW, readGate, writeGate)

	// 12. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Printf("Starting server on %s", addr)
	log.Fatal(app.Listen(addr))
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
	}

	var appErr *engine.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(code).JSON(engine.ErrorResponse{
		Error: &engine.AppError{
			Code:    "INTERNAL_ERROR",
			Message: "Internal server error",
		},
	})
}
