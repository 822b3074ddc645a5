package permission

import (
	"errors"
	"sync"
)

// RootPermission is the pseudo permission name that sets the registry's
// reserved root bit on a role.
const RootPermission = "*"

// RoleManager composes named roles out of registered permissions.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask
	frozen bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask),
	}
}

// RegisterRole records roleName as the union of permissionNames.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if roleName == "" {
		return errors.New("role name empty")
	}
	if _, exists := rm.roles[roleName]; exists {
		return errors.New("role already registered")
	}

	var mask Mask
	for _, perm := range permissionNames {
		if perm == RootPermission {
			bit, ok := rm.registry.RootBit()
			if !ok {
				return errors.New("root permission requires a reserved root bit")
			}
			mask.Set(bit)
			continue
		}
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask.Set(bit)
	}

	rm.roles[roleName] = mask
	return nil
}

// GetMask returns the permission mask of a role.
func (rm *RoleManager) GetMask(roleName string) (Mask, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[roleName]
	return mask, ok
}

// Permissions returns the union of permission names granted by roles.
// Unknown roles contribute nothing.
func (rm *RoleManager) Permissions(roles ...string) []string {
	var union Mask
	rm.mu.RLock()
	for _, role := range roles {
		if mask, ok := rm.roles[role]; ok {
			union.Union(mask)
		}
	}
	rm.mu.RUnlock()

	return rm.registry.Names(union)
}

// Freeze prevents further role registration.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of registered roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
