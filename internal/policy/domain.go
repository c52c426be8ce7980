package policy

// Rule states that a subject may perform an action on an object category.
// Subject is either a username or a role name; the store does not
// distinguish the two.
type Rule struct {
	Subject string
	Object  string
	Action  string
}

// Assignment links a user to a role. Roles are flat labels, not nodes in
// a hierarchy.
type Assignment struct {
	Username string
	Role     string
}

// Built-in roles.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Object categories used by the rule set.
const (
	ObjectUsers   = "users"
	ObjectOwnUser = "own_user"
	ObjectRoles   = "roles"
	ObjectStorage = "storage"
)

// Actions.
const (
	ActionRead   = "read"
	ActionWrite  = "write"
	ActionDelete = "delete"
)
