package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/linskybing/gpulab/config"
	"github.com/linskybing/gpulab/dto"
	"github.com/linskybing/gpulab/repositories"
	"github.com/linskybing/gpulab/response"
	"github.com/linskybing/gpulab/services"
)

type AdminHandler struct {
	svc      *services.AdminService
	auditSvc *services.AuditService
}

func NewAdminHandler(svc *services.AdminService, auditSvc *services.AuditService) *AdminHandler {
	return &AdminHandler{svc: svc, auditSvc: auditSvc}
}

// ListStudents godoc
// @Summary Student roster with usage and policy, sorted by name
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.Student
// @Failure 502 {object} response.ErrorResponse
// @Router /admin/students [get]
func (h *AdminHandler) ListStudents(c *gin.Context) {
	students, err := h.svc.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, response.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, students)
}

// SetStudentPolicy godoc
// @Summary Update a student's hour limit and/or access permission
// @Tags admin
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path string true "Student ID"
// @Param policy body dto.SetPolicyInput true "Fields to change"
// @Success 200 {object} models.Student
// @Failure 400 {object} response.ErrorResponse
// @Failure 404 {object} response.ErrorResponse
// @Router /admin/students/{id}/policy [put]
func (h *AdminHandler) SetStudentPolicy(c *gin.Context) {
	var input dto.SetPolicyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorResponse{Error: err.Error()})
		return
	}
	student, err := h.svc.SetStudentPolicy(c.Request.Context(), c.Param("id"), input)
	if err != nil {
		c.JSON(statusForError(err), response.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, student)
}

// Seed godoc
// @Summary Provision the GPU fleet if the directory is empty
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.MessageResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /admin/seed [post]
func (h *AdminHandler) Seed(c *gin.Context) {
	seeded, err := h.svc.SeedIfEmpty(c.Request.Context(), config.GpuSeedFile)
	if err != nil {
		c.JSON(http.StatusBadGateway, response.ErrorResponse{Error: err.Error()})
		return
	}
	msg := "directory not empty, nothing seeded"
	if seeded {
		msg = "gpu fleet seeded"
	}
	c.JSON(http.StatusOK, response.MessageResponse{Message: msg})
}

// ListAudits godoc
// @Summary Query the release reconciliation log
// @Tags admin
// @Security BearerAuth
// @Produce json
// @Param student_id query string false "Filter by student"
// @Param gpu_id query string false "Filter by GPU"
// @Param partial query bool false "Only partial releases"
// @Success 200 {array} models.AuditLog
// @Failure 500 {object} response.ErrorResponse
// @Router /admin/audits [get]
func (h *AdminHandler) ListAudits(c *gin.Context) {
	params := repositories.AuditQueryParams{}
	if v := c.Query("student_id"); v != "" {
		params.StudentID = &v
	}
	if v := c.Query("gpu_id"); v != "" {
		params.GPUID = &v
	}
	if v := c.Query("action"); v != "" {
		params.Action = &v
	}
	if v := c.Query("partial"); v != "" {
		partial := v == "true"
		params.Partial = &partial
	}
	logs, err := h.auditSvc.QueryAuditLogs(params)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, logs)
}
