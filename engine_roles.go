package authcore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeck/authcore/permission"
)

// HasPermission reports whether the validated identity may perform the
// action on the module. Custom role assignments take precedence over
// the built-in role.
func (e *Engine) HasPermission(ctx context.Context, claims *Claims, module, action string) bool {
	if e == nil || e.resolver == nil || claims == nil {
		return false
	}

	allowed := e.resolver.Has(ctx, claims.EffectiveRole(), module, action)
	if allowed {
		e.metricInc(MetricPermissionAllowed)
	} else {
		e.metricInc(MetricPermissionDenied)
	}
	return allowed
}

// RequirePermission is the error-returning form of [Engine.HasPermission].
func (e *Engine) RequirePermission(ctx context.Context, claims *Claims, module, action string) error {
	if !e.HasPermission(ctx, claims, module, action) {
		return ErrPermissionDenied
	}
	return nil
}

// ValidateAccess validates an access token and checks one permission in
// a single call, the shape most request handlers want. Authentication
// failures report [ErrUnauthorized]; a valid identity without the grant
// reports [ErrPermissionDenied].
func (e *Engine) ValidateAccess(ctx context.Context, accessToken, module, action string) (*Claims, error) {
	claims, err := e.Validate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if err := e.RequirePermission(ctx, claims, module, action); err != nil {
		return nil, err
	}
	return claims, nil
}

// GetRole returns a custom role definition.
func (e *Engine) GetRole(ctx context.Context, roleID string) (CustomRoleRecord, error) {
	if e == nil || e.roleProvider == nil {
		return CustomRoleRecord{}, ErrEngineNotReady
	}
	return e.roleProvider.GetCustomRole(ctx, roleID)
}

// CreateRole stores a new admin-defined role. Permission entries
// outside the known module/action surface are dropped before storage.
func (e *Engine) CreateRole(ctx context.Context, role CustomRoleRecord) (CustomRoleRecord, error) {
	if e == nil || e.roleProvider == nil {
		return CustomRoleRecord{}, ErrEngineNotReady
	}
	if role.Name == "" {
		return CustomRoleRecord{}, errors.New("role name required")
	}
	if permission.IsBuiltin(role.Name) {
		return CustomRoleRecord{}, errors.New("role name collides with a built-in role")
	}

	if role.RoleID == "" {
		role.RoleID = uuid.NewString()
	}
	role.Permissions = sanitizePermissions(role.Permissions)
	now := time.Now()
	role.CreatedAt = now
	role.UpdatedAt = now

	created, err := e.roleProvider.CreateCustomRole(ctx, role)
	if err != nil {
		return CustomRoleRecord{}, err
	}

	e.auditEmit(ctx, AuditEvent{
		EventType: EventRoleCreated,
		Success:   true,
		Metadata:  map[string]string{"role_id": created.RoleID, "name": created.Name},
	})
	return created, nil
}

// UpdateRole replaces a custom role's definition and invalidates its
// cached grants, so the change applies to subsequent permission checks.
func (e *Engine) UpdateRole(ctx context.Context, role CustomRoleRecord) error {
	if e == nil || e.roleProvider == nil {
		return ErrEngineNotReady
	}
	if role.RoleID == "" {
		return ErrRoleNotFound
	}

	role.Permissions = sanitizePermissions(role.Permissions)
	role.UpdatedAt = time.Now()

	if err := e.roleProvider.UpdateCustomRole(ctx, role); err != nil {
		return err
	}

	e.invalidateRole(role.RoleID)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventRoleUpdated,
		Success:   true,
		Metadata:  map[string]string{"role_id": role.RoleID},
	})
	return nil
}

// DeleteRole removes a custom role. System roles and roles still
// assigned to users are refused.
func (e *Engine) DeleteRole(ctx context.Context, roleID string) error {
	if e == nil || e.roleProvider == nil {
		return ErrEngineNotReady
	}

	role, err := e.roleProvider.GetCustomRole(ctx, roleID)
	if err != nil {
		return err
	}
	if role.System {
		return ErrRoleSystem
	}

	assigned, err := e.roleProvider.CountAssignedUsers(ctx, roleID)
	if err != nil {
		return err
	}
	if assigned > 0 {
		return ErrRoleInUse
	}

	if err := e.roleProvider.DeleteCustomRole(ctx, roleID); err != nil {
		return err
	}

	e.invalidateRole(roleID)
	e.auditEmit(ctx, AuditEvent{
		EventType: EventRoleDeleted,
		Success:   true,
		Metadata:  map[string]string{"role_id": roleID},
	})
	return nil
}

// InvalidateRoleCache drops a role's cached grants. Host applications
// that mutate role storage outside the engine call this to keep checks
// current.
func (e *Engine) InvalidateRoleCache(roleID string) {
	if e == nil || e.resolver == nil {
		return
	}
	e.invalidateRole(roleID)
}

func (e *Engine) invalidateRole(roleID string) {
	e.resolver.Cache().Invalidate(roleID)
	e.metricInc(MetricRoleCacheInvalidated)
}

func sanitizePermissions(perms map[string][]string) map[string][]string {
	g := permission.GrantsFromPermissions(perms)
	out := make(map[string][]string, len(g))
	for module, actions := range g {
		list := make([]string, 0, len(actions))
		for action := range actions {
			list = append(list, action)
		}
		out[module] = list
	}
	return out
}
