package constants

// Permission operations
const (
	PermRead      = "read"
	PermCreate    = "create"
	PermEdit      = "edit"
	PermDelete    = "delete"
	PermViewAll   = "view_all"
	PermModifyAll = "modify_all"
)
