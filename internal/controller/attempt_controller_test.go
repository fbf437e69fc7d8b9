package controller

import (
	"bytes"
	"encoding/json"
	"exam_coach_backend/internal/config"
	"exam_coach_backend/internal/middleware"
	"exam_coach_backend/internal/model"
	"exam_coach_backend/internal/repository"
	"exam_coach_backend/internal/service"
	"exam_coach_backend/internal/testutil"
	"exam_coach_backend/internal/util"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "controller-test-secret"

type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router *gin.Engine
	exams  *repository.ExamRepository
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.NewTestDB(t)
	cfg := config.ExamConfig{ViolationThreshold: 1, TimeGraceSeconds: 30}
	exams := repository.NewExamRepository(db, nil, 0)
	engine := service.NewAttemptService(repository.NewAttemptRepository(db), exams, service.NewPolicySet(cfg), nil, cfg.TimeGrace())
	results := service.NewResultService(engine, service.DefaultGradeTable())
	participants := service.NewParticipantService(repository.NewParticipantRepository(db), exams)

	attempts := NewAttemptController(engine, service.NewIntegrityService(engine), results)
	merit := NewMeritController(results)
	participant := NewParticipantController(participants)

	r := gin.New()
	api := r.Group("/api")
	student := api.Group("")
	student.Use(middleware.AuthMiddleware(testSecret), middleware.StudentTaker())
	student.POST("/exams/:examId/attempts", attempts.StartAttempt)
	student.GET("/attempts/:id/questions", attempts.GetQuestions)
	student.POST("/attempts/:id/answers", attempts.SubmitAnswer)
	student.POST("/attempts/:id/tab-switch", attempts.RecordTabSwitch)
	student.POST("/attempts/:id/submit", attempts.Submit)
	student.GET("/attempts/:id/result", attempts.GetResult)

	teacher := api.Group("/teacher")
	teacher.Use(middleware.AuthMiddleware(testSecret), middleware.RoleMiddleware(model.Teacher))
	teacher.GET("/exams/:examId/merit-list", merit.GetMeritList)

	api.POST("/public/exams/:examId/participants", participant.Register)
	public := api.Group("/public")
	public.Use(middleware.PublicTaker(participants))
	public.POST("/exams/:examId/attempts", attempts.StartAttempt)

	practice := api.Group("/practice")
	practice.Use(middleware.PracticeTaker())
	practice.POST("/exams/:examId/attempts", attempts.StartAttempt)
	practice.POST("/attempts/:id/answers", attempts.SubmitAnswer)
	practice.POST("/attempts/:id/abandon", attempts.Abandon)

	return &testServer{router: r, exams: exams}
}

func bearer(t *testing.T, userID uint, role model.UserRole) string {
	t.Helper()
	token, err := util.GenerateJWT(util.Claims{UserID: userID, Role: role}, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, headers map[string]string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestStudentAttemptLifecycle(t *testing.T) {
	s := newTestServer(t)
	exam := &model.Exam{DurationMinutes: 30}
	questions := testutil.SeedExam(t, s.exams, exam, 2, func(int) string { return "A" })
	auth := map[string]string{"Authorization": bearer(t, 5, model.Student)}
	startPath := fmt.Sprintf("/api/exams/%d/attempts", exam.ID)

	w, _ := s.do(t, http.MethodPost, startPath, nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, resp := s.do(t, http.MethodPost, startPath, nil, auth)
	require.Equal(t, http.StatusCreated, w.Code)
	var handle service.AttemptHandle
	require.NoError(t, json.Unmarshal(resp.Data, &handle))
	id := handle.Attempt.ID

	w, _ = s.do(t, http.MethodPost, startPath, nil, auth)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = s.do(t, http.MethodGet, "/api/attempts/"+id+"/questions", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, string(resp.Data), "correctLabel")

	answerPath := "/api/attempts/" + id + "/answers"
	w, _ = s.do(t, http.MethodPost, answerPath, service.AnswerInput{QuestionID: questions[0].ID, SelectedLabel: "a"}, auth)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, answerPath, service.AnswerInput{QuestionID: questions[0].ID, SelectedLabel: "B"}, auth)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodPost, answerPath, service.AnswerInput{QuestionID: questions[1].ID, SelectedLabel: "?!"}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/attempts/"+id+"/result", nil, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	other := map[string]string{"Authorization": bearer(t, 6, model.Student)}
	w, _ = s.do(t, http.MethodPost, "/api/attempts/"+id+"/submit", nil, other)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/attempts/"+id+"/submit", SubmitExamRequest{SubmissionType: "bogus"}, auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/attempts/"+id+"/submit", nil, auth)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp = s.do(t, http.MethodGet, "/api/attempts/"+id+"/result", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	var result service.AttemptResult
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, 1.0, result.Attempt.Score)
	assert.Equal(t, 1, result.Rank)

	// 单次作答：交卷后不能再开始
	w, _ = s.do(t, http.MethodPost, startPath, nil, auth)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/attempts/missing/result", nil, auth)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMeritListRequiresTeacher(t *testing.T) {
	s := newTestServer(t)
	exam := &model.Exam{}
	testutil.SeedExam(t, s.exams, exam, 1, func(int) string { return "A" })
	path := fmt.Sprintf("/api/teacher/exams/%d/merit-list", exam.ID)

	w, _ := s.do(t, http.MethodGet, path, nil, map[string]string{"Authorization": bearer(t, 5, model.Student)})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = s.do(t, http.MethodGet, path, nil, map[string]string{"Authorization": bearer(t, 1, model.Admin)})
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/teacher/exams/abc/merit-list", nil, map[string]string{"Authorization": bearer(t, 1, model.Teacher)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = s.do(t, http.MethodGet, "/api/teacher/exams/9999/merit-list", nil, map[string]string{"Authorization": bearer(t, 1, model.Teacher)})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicRegistrationAndStart(t *testing.T) {
	s := newTestServer(t)
	exam := &model.Exam{}
	testutil.SeedExam(t, s.exams, exam, 1, func(int) string { return "A" })

	w, resp := s.do(t, http.MethodPost, fmt.Sprintf("/api/public/exams/%d/participants", exam.ID),
		service.RegisterParticipantRequest{Name: "Tania", Phone: "01711000222"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reg service.ParticipantRegistration
	require.NoError(t, json.Unmarshal(resp.Data, &reg))

	w, _ = s.do(t, http.MethodPost, fmt.Sprintf("/api/public/exams/%d/participants", exam.ID),
		service.RegisterParticipantRequest{Name: "Someone Else", Phone: "01711000222"}, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	startPath := fmt.Sprintf("/api/public/exams/%d/attempts", exam.ID)
	w, _ = s.do(t, http.MethodPost, startPath, nil, map[string]string{util.HeaderParticipantToken: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, startPath, nil, map[string]string{util.HeaderParticipantToken: reg.Token})
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestPracticeSessionHeader(t *testing.T) {
	s := newTestServer(t)
	exam := &model.Exam{AllowPractice: true}
	testutil.SeedExam(t, s.exams, exam, 2, func(int) string { return "A" })
	startPath := fmt.Sprintf("/api/practice/exams/%d/attempts", exam.ID)

	w, _ := s.do(t, http.MethodPost, startPath, nil, map[string]string{util.HeaderPracticeSession: "bad id!"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, resp := s.do(t, http.MethodPost, startPath, nil, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	session := w.Header().Get(util.HeaderPracticeSession)
	require.NotEmpty(t, session)
	var handle service.AttemptHandle
	require.NoError(t, json.Unmarshal(resp.Data, &handle))

	headers := map[string]string{util.HeaderPracticeSession: session}
	w, _ = s.do(t, http.MethodPost, startPath, nil, headers)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = s.do(t, http.MethodPost, "/api/practice/attempts/"+handle.Attempt.ID+"/abandon", nil, map[string]string{util.HeaderPracticeSession: "another-session"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp = s.do(t, http.MethodPost, "/api/practice/attempts/"+handle.Attempt.ID+"/abandon", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	var abandoned model.ExamAttempt
	require.NoError(t, json.Unmarshal(resp.Data, &abandoned))
	assert.Equal(t, model.AttemptAbandoned, abandoned.Status)
}
