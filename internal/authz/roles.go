package authz

const (
	RoleDoctor = "doctor"
	RoleUser   = "user"
)

// NormalizeRole maps a caller-supplied role hint onto a known role. Anything unknown,
// including the empty string, becomes RoleDoctor.
func NormalizeRole(hint string) string {
	switch hint {
	case RoleUser:
		return RoleUser
	default:
		return RoleDoctor
	}
}
