package controller

import (
	"exam_coach_backend/internal/service"
	"exam_coach_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type MeritController struct {
	Results *service.ResultService
}

func NewMeritController(results *service.ResultService) *MeritController {
	return &MeritController{Results: results}
}

// @Summary 考试排名
// @Description 按分数降序、用时升序、交卷时间升序
// @Tags 教师
// @Produce json
// @Security ApiKeyAuth
// @Param examId path int true "考试ID"
// @Success 200 {object} util.Response{data=[]service.MeritEntry}
// @Router /teacher/exams/{examId}/merit-list [get]
func (c *MeritController) GetMeritList(ctx *gin.Context) {
	examID, ok := parseExamID(ctx)
	if !ok {
		return
	}
	entries, err := c.Results.MeritList(ctx.Request.Context(), examID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}
