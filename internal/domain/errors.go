package domain

import "errors"

// 错误分类（跨层使用 errors.Is 判断）
var (
	// ErrNotFound 账号/角色/传感器/报警不存在
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied ACL拒绝（预期结果，不是异常）
	ErrPermissionDenied = errors.New("permission denied")

	// ErrBackendUnavailable 存储或broker不可达
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrValidation 配置或参数校验失败（在任何变更前拒绝）
	ErrValidation = errors.New("validation error")
)
