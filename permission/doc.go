// Package permission maps role names to permission names.
//
// A [Registry] assigns each permission a stable bit in a 512-bit [Mask]; a
// [RoleManager] stores one mask per role and expands a user's roles into the
// flat permission list carried by the permissions claim. Everything here is in
// memory and safe for concurrent reads.
package permission
