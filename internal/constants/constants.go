package constants

// 支付状态常量
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusRefunded  = "refunded"
)

// 支付方式常量
const (
	PaymentMethodGateway = "pg"
	PaymentMethodCOD     = "cod"
)

// 支付网关常量
const (
	PaymentGatewayPhonePe = "PhonePe"
)

// 客户端平台常量
const (
	PlatformWeb    = "web"
	PlatformMobile = "mobile"
	PlatformAPI    = "api"
)

// 对账渠道常量
const (
	ReconcileChannelCreate   = "create"
	ReconcileChannelWebhook  = "webhook"
	ReconcileChannelVerify   = "verify"
	ReconcileChannelCallback = "mobile_callback"
	ReconcileChannelPoll     = "poll"
	ReconcileChannelSweep    = "sweep"
)

// 对账结果常量
const (
	ReconcileOutcomeApplied   = "applied"
	ReconcileOutcomeUnchanged = "unchanged"
	ReconcileOutcomeIgnored   = "ignored"
	ReconcileOutcomeNotFound  = "not_found"
	ReconcileOutcomeRejected  = "rejected"
)

// 通知级别常量
const (
	NotifyLevelSuccess  = "success"
	NotifyLevelFailed   = "failed"
	NotifyLevelPending  = "pending"
	NotifyLevelRefunded = "refunded"
)

// 通知通道常量
const (
	NotifyChannelPush   = "push"
	NotifyChannelLegacy = "legacy"
)

// 异步任务常量
const (
	QueueDefault          = "default"
	QueueCritical         = "critical"
	TaskPaymentNotify     = "payment:notify"
	TaskPaymentStatusPoll = "payment:status_poll"
)

// 支付列表默认值
const (
	DefaultPaymentPageSize = 10
	MaxPaymentPageSize     = 100
	DefaultPaymentOrdering = "-id"
)

// PlaceholderTransactionID 交易号尚未分配时回跳地址中使用的占位符
const PlaceholderTransactionID = "temp"
