package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 请求头
const (
	HeaderParticipantToken = "X-Participant-Token"
	HeaderPracticeSession  = "X-Practice-Session"
)

// gin 上下文键
const (
	ContextUserKey  = "user"
	ContextTakerKey = "taker"
)
