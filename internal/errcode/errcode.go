package errcode

// 错误码约定（随异步通知下发给前端）：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如头像缺失但 PDF 仍然生成）
// - 5xxx：系统错误（需要中断流程）
const (
	OK              = 0
	ResourceMissing = 4004
	SystemError     = 5000
	// SchemaMismatch 表示数据库结构落后于代码，需要运维执行迁移。
	SchemaMismatch = 5001
)
