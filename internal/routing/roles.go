package routing

// RoleInternal is required for operations that mutate downstream systems.
const RoleInternal = "internal"

// internalOperations mutate the search index or the relational store and are
// restricted to internal callers.
var internalOperations = map[string]struct{}{
	"delete":     {},
	"create":     {},
	"index":      {},
	"bulk-index": {},
}

// RoleForOperation maps an operation name to the role it requires. Anything
// outside the internal set needs only the configured default role.
func RoleForOperation(operation, defaultRole string) string {
	if _, ok := internalOperations[operation]; ok {
		return RoleInternal
	}
	return defaultRole
}
