package rbac

// Role names. Keep these stable; they are part of auth contracts.
const (
	RoleCaller = "caller"
	RoleOtomo  = "otomo"
	RoleAdmin  = "admin"

	// RoleMediaBridge is the internal identity of the media layer posting
	// connected/heartbeat signals. Not issued to end users.
	RoleMediaBridge = "media_bridge"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsInternal(role string) bool { return role == RoleMediaBridge }
