package model

// UserRole 来自认证服务签发的 JWT，这里只做角色判断
type UserRole string

const (
	Student UserRole = "student"
	Teacher UserRole = "teacher"
	Admin   UserRole = "admin"
)
