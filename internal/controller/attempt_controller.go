package controller

import (
	"exam_coach_backend/internal/middleware"
	"exam_coach_backend/internal/service"
	"exam_coach_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// AttemptController 学生、公开考试、练习三种流程共用，身份由路由组中间件注入
type AttemptController struct {
	Attempts  *service.AttemptService
	Integrity *service.IntegrityService
	Results   *service.ResultService
}

func NewAttemptController(attempts *service.AttemptService, integrity *service.IntegrityService, results *service.ResultService) *AttemptController {
	return &AttemptController{Attempts: attempts, Integrity: integrity, Results: results}
}

type SubmitExamRequest struct {
	SubmissionType string `json:"submissionType" example:"manual"`
}

func parseExamID(ctx *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param("examId"), 10, 64)
	if err != nil || id == 0 {
		util.BadRequest(ctx, "invalid exam id")
		return 0, false
	}
	return uint(id), true
}

func takerOrAbort(ctx *gin.Context) (service.Taker, bool) {
	taker, ok := middleware.GetTaker(ctx)
	if !ok {
		util.Unauthorized(ctx)
	}
	return taker, ok
}

// @Summary 开始或继续作答
// @Description 同一考生同一考试只有一条进行中的作答，重复调用返回同一作答
// @Tags 考试作答
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "考试ID"
// @Success 201 {object} util.Response{data=service.AttemptHandle}
// @Success 200 {object} util.Response{data=service.AttemptHandle} "继续已有作答"
// @Failure 403 {object} util.Response
// @Failure 404 {object} util.Response
// @Failure 409 {object} util.Response
// @Router /exams/{examId}/attempts [post]
// @Router /public/exams/{examId}/attempts [post]
// @Router /practice/exams/{examId}/attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	examID, ok := parseExamID(ctx)
	if !ok {
		return
	}
	taker, ok := takerOrAbort(ctx)
	if !ok {
		return
	}

	handle, err := c.Attempts.StartOrResume(ctx.Request.Context(), examID, taker)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	if handle.Resumed {
		util.Success(ctx, handle)
		return
	}
	util.Created(ctx, handle)
}

// @Summary 获取作答题目
// @Description 不含正确答案；开启选项乱序时选项保留原字母
// @Tags 考试作答
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=[]service.DeliveredQuestion}
// @Router /attempts/{id}/questions [get]
// @Router /public/attempts/{id}/questions [get]
// @Router /practice/attempts/{id}/questions [get]
func (c *AttemptController) GetQuestions(ctx *gin.Context) {
	taker, ok := takerOrAbort(ctx)
	if !ok {
		return
	}
	questions, err := c.Attempts.GetAttemptQuestions(ctx.Request.Context(), ctx.Param("id"), taker)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, questions)
}

// @Summary 提交单题答案
// @Tags 考试作答
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Param answer body service.AnswerInput true "答案"
// @Success 200 {object} util.Response{data=service.AnswerOutcome}
// @Failure 400 {object} util.Response
// @Failure 409 {object} util.Response "已作答（正式考试）"
// @Router /attempts/{id}/answers [post]
// @Router /public/attempts/{id}/answers [post]
// @Router /practice/attempts/{id}/answers [post]
func (c *AttemptController) SubmitAnswer(ctx *gin.Context) {
	taker, ok := takerOrAbort(ctx)
	if !ok {
		return
	}
	var req service.AnswerInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	outcome, err := c.Attempts.SubmitAnswer(ctx.Request.Context(), ctx.Param("id"), taker, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, outcome)
}

// @Summary 上报切屏
// @Description 达到阈值自动交卷；作答结束后的上报只记录，不报错
// @Tags 考试作答
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=service.TabSwitchResult}
// @Router /attempts/{id}/tab-switch [post]
// @Router /public/attempts/{id}/tab-switch [post]
// @Router /practice/attempts/{id}/tab-switch [post]
func (c *AttemptController) RecordTabSwitch(ctx *gin.Context) {
	taker, ok := takerOrAbort(ctx)
	if !ok {
		return
	}
	result, err := c.Integrity.RecordVisibilityLoss(ctx.Request.Context(), ctx.Param("id"), taker)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// @Summary 交卷
// @Tags 考试作答
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Param body body SubmitExamRequest false "manual 或 time_up，默认 manual"
// @Success 200 {object} util.Response{data=model.ExamAttempt}
// @Failure 400 {object} util.Response
// @Router /attempts/{id}/submit [post]
// @Router /public/attempts/{id}/submit [post]
// @Router /practice/attempts/{id}/submit [post]
func (c *AttemptController) Submit(ctx *gin.Context) {
	taker, ok := takerOrAbort(ctx)
	if !ok {
		return
	}
	var req SubmitExamRequest
	if ctx.Request.ContentLength > 0 {
		if err := ctx.ShouldBindJSON(&req); err != nil {
			util.BadRequest(ctx, err.Error())
			return
		}
	}
	submission, err := service.ParseSubmissionType(req.SubmissionType)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}

	attempt, err := c.Attempts.Submit(ctx.Request.Context(), ctx.Param("id"), taker, submission)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 放弃练习
// @Tags 考试作答
// @Produce json
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=model.ExamAttempt}
// @Router /practice/attempts/{id}/abandon [post]
func (c *AttemptController) Abandon(ctx *gin.Context) {
	taker, ok := takerOrAbort(ctx)
	if !ok {
		return
	}
	attempt, err := c.Attempts.Abandon(ctx.Request.Context(), ctx.Param("id"), taker)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, attempt)
}

// @Summary 获取成绩
// @Description 含逐题回顾、等级与排名，作答结束后可用
// @Tags 考试作答
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "作答ID"
// @Success 200 {object} util.Response{data=service.AttemptResult}
// @Failure 400 {object} util.Response
// @Failure 403 {object} util.Response
// @Router /attempts/{id}/result [get]
// @Router /public/attempts/{id}/result [get]
// @Router /practice/attempts/{id}/result [get]
func (c *AttemptController) GetResult(ctx *gin.Context) {
	taker, ok := takerOrAbort(ctx)
	if !ok {
		return
	}
	result, err := c.Results.GetResult(ctx.Request.Context(), ctx.Param("id"), taker)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
