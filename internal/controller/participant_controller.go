package controller

import (
	"exam_coach_backend/internal/service"
	"exam_coach_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ParticipantController struct {
	Participants *service.ParticipantService
}

func NewParticipantController(participants *service.ParticipantService) *ParticipantController {
	return &ParticipantController{Participants: participants}
}

// @Summary 公开考试登记
// @Description 令牌只在首次登记时返回，后续请求通过 X-Participant-Token 传递；同一手机号重复登记返回 409
// @Tags 公开考试
// @Accept json
// @Produce json
// @Param examId path int true "考试ID"
// @Param body body service.RegisterParticipantRequest true "姓名与手机号"
// @Success 200 {object} util.Response{data=service.ParticipantRegistration}
// @Failure 409 {object} util.Response
// @Router /public/exams/{examId}/participants [post]
func (c *ParticipantController) Register(ctx *gin.Context) {
	examID, ok := parseExamID(ctx)
	if !ok {
		return
	}
	var req service.RegisterParticipantRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	reg, err := c.Participants.Register(ctx.Request.Context(), examID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, reg)
}
