package permission

import (
	"reflect"
	"testing"
)

func newRegistry(t *testing.T, root bool, perms ...string) *Registry {
	t.Helper()
	r, err := NewRegistry(64, root)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	for _, p := range perms {
		if _, err := r.Register(p); err != nil {
			t.Fatalf("register %s: %v", p, err)
		}
	}
	r.Freeze()
	return r
}

func TestPermissionsUnionAcrossRoles(t *testing.T) {
	r := newRegistry(t, false, "read", "write", "delete")
	rm := NewRoleManager(r)
	if err := rm.RegisterRole("reader", []string{"read"}); err != nil {
		t.Fatalf("reader: %v", err)
	}
	if err := rm.RegisterRole("editor", []string{"read", "write"}); err != nil {
		t.Fatalf("editor: %v", err)
	}

	got := rm.Permissions("reader", "editor", "ghost")
	if want := []string{"read", "write"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRootPermissionExpandsToAll(t *testing.T) {
	r := newRegistry(t, true, "read", "write")
	rm := NewRoleManager(r)
	if err := rm.RegisterRole("admin", []string{RootPermission}); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if got := rm.Permissions("admin"); !reflect.DeepEqual(got, []string{"read", "write"}) {
		t.Fatalf("unexpected permissions %v", got)
	}
}

func TestRegisterRoleValidation(t *testing.T) {
	r := newRegistry(t, false, "read")
	rm := NewRoleManager(r)
	if err := rm.RegisterRole("", nil); err == nil {
		t.Fatal("expected empty role name to fail")
	}
	if err := rm.RegisterRole("x", []string{"missing"}); err == nil {
		t.Fatal("expected unknown permission to fail")
	}
	if err := rm.RegisterRole("root", []string{RootPermission}); err == nil {
		t.Fatal("expected root permission without reserved bit to fail")
	}
	rm.Freeze()
	if err := rm.RegisterRole("late", []string{"read"}); err == nil {
		t.Fatal("expected frozen manager to refuse roles")
	}
}

func TestRegistryLimits(t *testing.T) {
	if _, err := NewRegistry(0, false); err == nil {
		t.Fatal("expected zero width to fail")
	}
	r, _ := NewRegistry(2, true)
	if _, err := r.Register("a"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := r.Register("b"); err == nil {
		t.Fatal("expected root bit to be reserved")
	}
}

func TestMaskBits(t *testing.T) {
	var m Mask
	m.Set(0)
	m.Set(511)
	m.Set(600)
	if !m.Has(0) || !m.Has(511) || m.Has(600) {
		t.Fatal("unexpected mask bits")
	}
	m.Clear(0)
	if m.Has(0) {
		t.Fatal("expected bit cleared")
	}
}
