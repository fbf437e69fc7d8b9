package middleware

import (
	"context"
	"errors"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/service"
	"exam_coach_backend/internal/util"
	"exam_coach_backend/pkg/security"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResolver struct {
	participants map[string]*model.PublicParticipant
	err          error
}

func (r stubResolver) Resolve(_ context.Context, token string) (*model.PublicParticipant, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.participants[token], nil
}

func serve(t *testing.T, handlers []gin.HandlerFunc, header map[string]string) (*httptest.ResponseRecorder, *service.Taker) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var got *service.Taker
	r := gin.New()
	handlers = append(handlers, func(c *gin.Context) {
		taker, ok := GetTaker(c)
		require.True(t, ok)
		got = &taker
		c.Status(http.StatusNoContent)
	})
	r.GET("/whoami", handlers...)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w, got
}

func TestStudentTakerFromJWT(t *testing.T) {
	token, err := util.GenerateJWT(util.Claims{UserID: 42, Role: model.Student}, "s3cret", time.Hour)
	require.NoError(t, err)

	w, taker := serve(t, []gin.HandlerFunc{AuthMiddleware("s3cret"), StudentTaker()}, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, taker)
	assert.Equal(t, model.FlowStudent, taker.Flow)
	assert.Equal(t, uint(42), taker.StudentID)

	w, taker = serve(t, []gin.HandlerFunc{AuthMiddleware("other"), StudentTaker()}, map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Nil(t, taker)

	w, _ = serve(t, []gin.HandlerFunc{AuthMiddleware("s3cret"), StudentTaker()}, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPublicTakerResolvesToken(t *testing.T) {
	p := &model.PublicParticipant{ExamID: 3}
	p.ID = "p-1"
	resolver := stubResolver{participants: map[string]*model.PublicParticipant{"tok": p}}

	w, taker := serve(t, []gin.HandlerFunc{PublicTaker(resolver)}, map[string]string{util.HeaderParticipantToken: "tok"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, taker)
	assert.Equal(t, model.FlowPublic, taker.Flow)
	assert.Equal(t, "p-1", taker.ParticipantID)

	w, _ = serve(t, []gin.HandlerFunc{PublicTaker(resolver)}, map[string]string{util.HeaderParticipantToken: "unknown"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = serve(t, []gin.HandlerFunc{PublicTaker(stubResolver{err: errors.New("db down")})}, map[string]string{util.HeaderParticipantToken: "tok"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPracticeTakerSession(t *testing.T) {
	w, taker := serve(t, []gin.HandlerFunc{PracticeTaker()}, map[string]string{util.HeaderPracticeSession: "session_0001"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, taker)
	assert.Equal(t, "session_0001", taker.SessionID)
	assert.Equal(t, "session_0001", w.Header().Get(util.HeaderPracticeSession))

	w, taker = serve(t, []gin.HandlerFunc{PracticeTaker()}, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.NotNil(t, taker)
	assert.NotEmpty(t, taker.SessionID)
	assert.Equal(t, taker.SessionID, w.Header().Get(util.HeaderPracticeSession))

	w, _ = serve(t, []gin.HandlerFunc{PracticeTaker()}, map[string]string{util.HeaderPracticeSession: "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoleMiddlewareAdminPasses(t *testing.T) {
	for role, want := range map[model.UserRole]int{
		model.Teacher: http.StatusOK,
		model.Admin:   http.StatusOK,
		model.Student: http.StatusForbidden,
	} {
		gin.SetMode(gin.TestMode)
		r := gin.New()
		claims := &util.Claims{UserID: 1, Role: role}
		r.GET("/teacher", func(c *gin.Context) {
			c.Set(util.ContextUserKey, claims)
			c.Next()
		}, RoleMiddleware(model.Teacher), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teacher", nil))
		assert.Equal(t, want, w.Code, "role %s", role)
	}
}

func TestTakerLimitKeyUsesResolvedTaker(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resolver := stubResolver{participants: map[string]*model.PublicParticipant{
		"tok-nila": {UUIDBase: model.UUIDBase{ID: "p-nila"}, ExamID: 1},
	}}
	r := gin.New()
	r.Use(PublicTaker(resolver), security.RateLimiter(ctx, 2, time.Hour, TakerLimitKey))
	r.GET("/whoami", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	send := func(token string) int {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set(util.HeaderParticipantToken, token)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	// 伪造令牌在身份解析阶段即被拒绝，不会进入按考生的限流表
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusUnauthorized, send(fmt.Sprintf("bogus-%d", i)))
	}
	assert.Equal(t, http.StatusNoContent, send("tok-nila"))
	assert.Equal(t, http.StatusNoContent, send("tok-nila"))
	assert.Equal(t, http.StatusTooManyRequests, send("tok-nila"))
}

func TestTakerLimitKeyFallsBackToIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "10.0.0.7:5555"
	assert.Equal(t, "ip:10.0.0.7", TakerLimitKey(c))

	c.Set(util.ContextTakerKey, service.PracticeTaker("session-key-1"))
	assert.Equal(t, "practice:session-key-1", TakerLimitKey(c))
}
