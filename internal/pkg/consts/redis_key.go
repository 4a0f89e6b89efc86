package consts

const (
	// MediaTempKey 已上传但尚未被消息引用的附件
	MediaTempKey = "chat:media:temp"
	// TokenRevokedKey 已注销的 Token 签名
	TokenRevokedKey = "auth:revoked:"
)

// 会话变更通知频道
const (
	ChatScopeChannel    = "chat:scope:"
	ChatKindChannel     = "chat:kind:"
	ChatCustomerChannel = "chat:customer:"
)
