package middleware

const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

var allowedRoles = map[string]struct{}{
	RoleAdmin:   {},
	RoleTeacher: {},
	RoleStudent: {},
}

func IsValidRole(role string) bool {
	_, ok := allowedRoles[role]
	return ok
}
