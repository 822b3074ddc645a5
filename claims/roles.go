package claims

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/permission"
)

const (
	// UserRolesKey is the payload key of the roles claim.
	UserRolesKey = "st-role"
	// PermissionsKey is the payload key of the permissions claim.
	PermissionsKey = "st-perm"
)

// RoleProvider returns the roles of a user within a tenant.
type RoleProvider interface {
	GetRolesForUser(ctx context.Context, tenantID, userID string) ([]string, error)
}

// RoleProviderFunc adapts a function to [RoleProvider].
type RoleProviderFunc func(ctx context.Context, tenantID, userID string) ([]string, error)

func (f RoleProviderFunc) GetRolesForUser(ctx context.Context, tenantID, userID string) ([]string, error) {
	return f(ctx, tenantID, userID)
}

// NewUserRolesClaim creates the "st-role" claim.
func NewUserRolesClaim(provider RoleProvider, defaultMaxAge time.Duration) *PrimitiveArrayClaim {
	return NewPrimitiveArrayClaim(UserRolesKey, func(ctx context.Context, userID, _, tenantID string, _ map[string]any) (any, error) {
		roles, err := provider.GetRolesForUser(ctx, tenantID, userID)
		if err != nil {
			return nil, err
		}
		return Strings(roles...), nil
	}, defaultMaxAge)
}

// NewPermissionClaim creates the "st-perm" claim: the union of permissions
// granted by the user's roles, resolved through rm.
func NewPermissionClaim(provider RoleProvider, rm *permission.RoleManager, defaultMaxAge time.Duration) *PrimitiveArrayClaim {
	return NewPrimitiveArrayClaim(PermissionsKey, func(ctx context.Context, userID, _, tenantID string, _ map[string]any) (any, error) {
		roles, err := provider.GetRolesForUser(ctx, tenantID, userID)
		if err != nil {
			return nil, err
		}
		return Strings(rm.Permissions(roles...)...), nil
	}, defaultMaxAge)
}
