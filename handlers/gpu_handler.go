package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/linskybing/gpulab/repositories"
	"github.com/linskybing/gpulab/response"
	"github.com/linskybing/gpulab/services"
	"github.com/linskybing/gpulab/utils"
)

type GPUHandler struct {
	svc *services.SessionService
}

func NewGPUHandler(svc *services.SessionService) *GPUHandler {
	return &GPUHandler{svc: svc}
}

// statusForError maps the session error taxonomy onto HTTP statuses. Anything
// unrecognized is treated as a store/backend failure.
func statusForError(err error) int {
	switch {
	case errors.Is(err, repositories.ErrGPUNotFound),
		errors.Is(err, repositories.ErrStudentNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrAccessRevoked),
		errors.Is(err, services.ErrQuotaExceeded):
		return http.StatusForbidden
	case errors.Is(err, services.ErrAlreadyActive),
		errors.Is(err, services.ErrGPUNotAvailable),
		errors.Is(err, services.ErrGPUNotInUse),
		errors.Is(err, repositories.ErrNotAnOccupant):
		return http.StatusConflict
	case errors.Is(err, repositories.ErrNegativeAccrual):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// ListGPUs godoc
// @Summary Current GPU directory snapshot
// @Tags gpus
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.GPU
// @Failure 502 {object} response.ErrorResponse
// @Router /gpus [get]
func (h *GPUHandler) ListGPUs(c *gin.Context) {
	gpus, err := h.svc.ListGPUs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, response.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gpus)
}

// Access godoc
// @Summary Start an exclusive session on an available GPU
// @Tags gpus
// @Security BearerAuth
// @Produce json
// @Param id path string true "GPU ID"
// @Success 200 {object} response.SSHResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /gpus/{id}/access [post]
func (h *GPUHandler) Access(c *gin.Context) {
	identity, err := utils.IdentityFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{Error: "unauthorized"})
		return
	}
	sshCommand, err := h.svc.Access(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), response.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response.SSHResponse{SSHCommand: sshCommand})
}

// Join godoc
// @Summary Join a GPU that is already in use
// @Tags gpus
// @Security BearerAuth
// @Produce json
// @Param id path string true "GPU ID"
// @Success 200 {object} response.SSHResponse
// @Failure 403 {object} response.ErrorResponse
// @Failure 409 {object} response.ErrorResponse
// @Router /gpus/{id}/join [post]
func (h *GPUHandler) Join(c *gin.Context) {
	identity, err := utils.IdentityFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{Error: "unauthorized"})
		return
	}
	sshCommand, err := h.svc.Join(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), response.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response.SSHResponse{SSHCommand: sshCommand})
}

// Release godoc
// @Summary End the caller's session and accrue usage
// @Tags gpus
// @Security BearerAuth
// @Produce json
// @Param id path string true "GPU ID"
// @Success 200 {object} response.ReleaseResponse
// @Failure 409 {object} response.ErrorResponse
// @Failure 502 {object} response.ErrorResponse
// @Router /gpus/{id}/release [post]
func (h *GPUHandler) Release(c *gin.Context) {
	identity, err := utils.IdentityFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, response.ErrorResponse{Error: "unauthorized"})
		return
	}
	seconds, err := h.svc.Release(c.Request.Context(), identity, c.Param("id"))
	if err != nil {
		c.JSON(statusForError(err), response.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, response.ReleaseResponse{
		Message:        "gpu released",
		AccruedSeconds: seconds,
		AccruedPretty:  utils.FormatDuration(seconds),
	})
}
