package rbac

// Simple default policy. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"course:view",
		"component:view",
		"attempt:create",
		"attempt:submit",
		"attempt:view-own",
		"progress:view-own",
		"progress:ping",
		"user:change_password",
	},
	"teacher": {
		"course:create",
		"course:delete_own",
		"course:view",
		"component:create",
		"component:delete",
		"component:view",
		"attempt:view-all",
		"progress:view-all",
		"users:bulk_upsert",
		"users:list",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
