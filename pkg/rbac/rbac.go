package rbac

// 权限常量
const (
	// 管理类权限
	PermissionManageWorkflow  = "workflow:manage"
	PermissionCreateProject   = "project:create"
	PermissionManageReviewers = "reviewer:manage"
	PermissionReplayOutbox    = "outbox:replay"

	// 普通操作权限
	PermissionSubmitArtifact = "artifact:submit"
	PermissionDecide         = "review:decide"
	PermissionFinalApprove   = "review:final_approve"
	PermissionReadReview     = "review:read"
)

// 角色常量（组织角色，由身份服务在 JWT 中下发）
const (
	RoleViewer = "viewer"
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// 角色权限映射
var rolePermissions = map[string][]string{
	RoleViewer: {
		PermissionReadReview,
	},
	RoleMember: {
		PermissionReadReview,
		PermissionSubmitArtifact,
		PermissionDecide,
		PermissionFinalApprove,
		PermissionCreateProject,
	},
	RoleAdmin: {
		PermissionReadReview,
		PermissionSubmitArtifact,
		PermissionDecide,
		PermissionFinalApprove,
		PermissionCreateProject,
		PermissionManageWorkflow,
		PermissionManageReviewers,
		PermissionReplayOutbox,
	},
}

// NormalizeRole 未知或为空的角色按 viewer 处理，只给只读权限
func NormalizeRole(role string) string {
	if _, ok := rolePermissions[role]; ok {
		return role
	}
	return RoleViewer
}

// HasPermission 检查角色是否有指定权限
func HasPermission(role, permission string) bool {
	permissions, ok := rolePermissions[NormalizeRole(role)]
	if !ok {
		return false
	}

	for _, p := range permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission 检查用户是否有指定权限（返回错误而不是布尔值，便于处理）
func CheckPermission(userID, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			UserID:     userID,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError 表示权限不足的错误
type PermissionDeniedError struct {
	UserID     string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions: " + e.Permission
}
