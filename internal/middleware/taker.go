package middleware

import (
	"context"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/service"
	"exam_coach_backend/internal/util"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// ParticipantResolver 由公开考生令牌解析身份
type ParticipantResolver interface {
	Resolve(ctx context.Context, token string) (*model.PublicParticipant, error)
}

// StudentTaker 需在 AuthMiddleware 之后使用
func StudentTaker() gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := util.GetUserFromContext(c)
		if claims == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		c.Set(util.ContextTakerKey, service.StudentTaker(claims))
		c.Next()
	}
}

func PublicTaker(resolver ParticipantResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		participant, err := resolver.Resolve(c.Request.Context(), c.GetHeader(util.HeaderParticipantToken))
		if err != nil {
			util.LogInternalError(c, err)
			c.Abort()
			return
		}
		if participant == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		c.Set(util.ContextTakerKey, service.PublicTaker(participant))
		c.Next()
	}
}

// PracticeTaker 没有会话头时分配新会话，并通过响应头返回
func PracticeTaker() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.GetHeader(util.HeaderPracticeSession)
		if sessionID == "" {
			sessionID = uuid.New().String()
		} else if !sessionIDPattern.MatchString(sessionID) {
			util.BadRequest(c, "invalid practice session id")
			c.Abort()
			return
		}
		c.Header(util.HeaderPracticeSession, sessionID)
		c.Set(util.ContextTakerKey, service.PracticeTaker(sessionID))
		c.Next()
	}
}

func GetTaker(c *gin.Context) (service.Taker, bool) {
	v, exists := c.Get(util.ContextTakerKey)
	if !exists {
		return service.Taker{}, false
	}
	taker, ok := v.(service.Taker)
	return taker, ok
}

// TakerLimitKey 身份中间件之后使用，按已校验的作答身份限流；未解析出身份时退回按 IP
func TakerLimitKey(c *gin.Context) string {
	if taker, ok := GetTaker(c); ok && taker.Key != "" {
		return taker.Key
	}
	return "ip:" + c.ClientIP()
}
