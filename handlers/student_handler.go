package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/linskybing/gpulab/response"
	"github.com/linskybing/gpulab/services"
	"github.com/linskybing/gpulab/utils"
)

type StudentHandler struct {
	svc *services.SessionService
}

func NewStudentHandler(svc *services.SessionService) *StudentHandler {
	return &StudentHandler{svc: svc}
}

// Me godoc
// @Summary The caller's own ledger record (self-provisions on first call)
// @Tags students
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.StudentResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /students/me [get]
func (h *StudentHandler) Me(c *gin.Context) {
	identity, err := utils.IdentityFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{Error: "unauthorized"})
		return
	}
	student, err := h.svc.Account(c.Request.Context(), identity)
	if err != nil {
		c.JSON(http.StatusBadGateway, response.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response.StudentResponse{
		Student:     student,
		UsagePretty: utils.FormatDuration(student.TotalUsageSeconds),
	})
}
