package middleware

import (
	"github.com/sudo-init-do/diecasthub/internal/trade"
)

// ModeratorGuard lets moderators and admins through to dispute administration.
var ModeratorGuard = RequireRoles(trade.RoleModerator, trade.RoleAdmin)
