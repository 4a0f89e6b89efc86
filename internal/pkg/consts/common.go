package consts

const (
	MimePrefixImage = "image/"
	MimePrefixAudio = "audio/"
	MimePrefixVideo = "video/"
)

// ObjectPrefix 会话附件在存储桶中的前缀
const ObjectPrefix = "chat/"

// ThumbnailSuffix 缩略图对象名后缀
const ThumbnailSuffix = "_thumb.jpg"

// gin.Context 中的键
const (
	CtxIdentityKey = "identity"
	CtxUserIDKey   = "user_id"
	CtxRolesKey    = "roles"
)
