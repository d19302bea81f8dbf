package rbac

const (
	RoleStudent = "student"
	RoleTeacher = "teacher"
	RoleAdmin   = "admin"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"exam:view",
		"attempt:create",
		"attempt:submit",
		"attempt:view-own",
	},
	RoleTeacher: {
		"exam:create",
		"exam:publish",
		"exam:view",
		"exam:view-answers",
		"attempt:view-all",
	},
	RoleAdmin: {
		"*",
	},
}
