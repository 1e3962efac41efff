package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"unipanel-backend/internal/cache"
	"unipanel-backend/internal/schema"
	"unipanel-backend/internal/store"
)

// roleCacheTTL bounds staleness after a role change. Resolutions within
// the window reuse the cached value instead of a database round trip.
const roleCacheTTL = 5 * time.Minute

type roleKey struct {
	AdminID   string
	ProjectID string
}

// RoleResolver computes an admin's role for a project: the global super
// admin flag wins, else the per-project assignment, else none.
type RoleResolver struct {
	store *store.Store
	cache *cache.Cache[roleKey, schema.Role]
}

func NewRoleResolver(s *store.Store) *RoleResolver {
	r := &RoleResolver{store: s}
	r.cache = cache.New(roleCacheTTL, roleCacheTTL, r.fetch)
	return r
}

// Resolve returns the role for (adminID, projectID), cached for a short TTL.
func (r *RoleResolver) Resolve(ctx context.Context, adminID, projectID string) (schema.Role, error) {
	return r.cache.Get(ctx, roleKey{AdminID: adminID, ProjectID: projectID})
}

// Invalidate drops the cached role after a role assignment changes.
func (r *RoleResolver) Invalidate(adminID, projectID string) {
	r.cache.Invalidate(roleKey{AdminID: adminID, ProjectID: projectID})
}

func (r *RoleResolver) fetch(ctx context.Context, key roleKey) (schema.Role, error) {
	row, err := store.QueryRow(ctx, r.store.Pool,
		`SELECT a.super_admin, ar.role
		 FROM _admins a
		 LEFT JOIN _admin_roles ar ON ar.admin_id = a.id AND ar.project_id = $2
		 WHERE a.id = $1 AND a.active`, key.AdminID, key.ProjectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.RoleNone, nil
		}
		return schema.RoleNone, fmt.Errorf("resolve role: %w", err)
	}

	if superAdmin, _ := row["super_admin"].(bool); superAdmin {
		return schema.RoleSuperAdmin, nil
	}

	switch role, _ := row["role"].(string); role {
	case string(schema.RoleProjectAdmin):
		return schema.RoleProjectAdmin, nil
	case string(schema.RoleProjectSuperAdmin):
		return schema.RoleProjectSuperAdmin, nil
	}
	return schema.RoleNone, nil
}
