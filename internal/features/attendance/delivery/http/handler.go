package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "solock-backend/internal/common/errors"
	"solock-backend/internal/common/middleware"
	"solock-backend/internal/features/attendance/service"
)

type AttendanceHandler struct {
	service service.AttendanceService
	logger  zerolog.Logger
}

func NewAttendanceHandler(service service.AttendanceService, logger zerolog.Logger) *AttendanceHandler {
	return &AttendanceHandler{
		service: service,
		logger:  logger,
	}
}

func (h *AttendanceHandler) RegisterRoutes(router *gin.RouterGroup) {
	attendance := router.Group("/attendance")
	{
		attendance.POST("/register", h.register)
		attendance.POST("/check-in", h.checkIn)
		attendance.GET("/profile", h.profile)
		attendance.GET("/history", h.history)
		attendance.GET("/leaderboard", h.leaderboard)
		attendance.GET("/stats", h.stats)
	}
}

type registerRequest struct {
	DisplayName string `json:"display_name" binding:"required"`
}

// @Summary Register the active identity
// @Description Creates the participant profile for the active wallet identity. Fails with 409 when already registered.
// @Tags attendance
// @Accept json
// @Produce json
// @Param request body registerRequest true "Display name (1-20 characters)"
// @Success 200 {object} models.ProfileResponse "Resolved profile state"
// @Failure 400 {object} middleware.ErrorResponse "Invalid display name"
// @Failure 401 {object} middleware.ErrorResponse "No active identity"
// @Router /attendance/register [post]
func (h *AttendanceHandler) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.SendError(c, apperrors.NewValidationError("display_name", "required"), h.logger)
		return
	}

	resp, err := h.service.Register(c.Request.Context(), req.DisplayName)
	if err != nil {
		middleware.SendError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Check in for today
// @Description Submits today's check-in. A repeat attempt the same day resolves to the already-checked-in state, not an error.
// @Tags attendance
// @Produce json
// @Success 200 {object} models.CheckInResponse "Resolved check-in state"
// @Failure 401 {object} middleware.ErrorResponse "No active identity"
// @Failure 404 {object} middleware.ErrorResponse "Not registered"
// @Router /attendance/check-in [post]
func (h *AttendanceHandler) checkIn(c *gin.Context) {
	resp, err := h.service.CheckIn(c.Request.Context())
	if err != nil {
		middleware.SendError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get the active identity's profile
// @Tags attendance
// @Produce json
// @Success 200 {object} models.ProfileResponse "Resolved profile state"
// @Failure 404 {object} middleware.ErrorResponse "Not registered"
// @Router /attendance/profile [get]
func (h *AttendanceHandler) profile(c *gin.Context) {
	resp, err := h.service.Profile(c.Request.Context())
	if err != nil {
		middleware.SendError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get attendance history
// @Tags attendance
// @Produce json
// @Param days query int false "Window size in days (default 30, max 90)"
// @Success 200 {array} models.DayStatus "Day-by-day attendance"
// @Router /attendance/history [get]
func (h *AttendanceHandler) history(c *gin.Context) {
	days := 30
	if raw := c.Query("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			middleware.SendError(c, apperrors.NewValidationError("days", "must be an integer"), h.logger)
			return
		}
		days = parsed
	}

	resp, err := h.service.History(c.Request.Context(), days)
	if err != nil {
		middleware.SendError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get the leaderboard
// @Description Top 10 participants by check-in count. Served from the last cached snapshot (flagged stale) when the ledger fetch fails.
// @Tags attendance
// @Produce json
// @Success 200 {object} models.LeaderboardResponse "Ranked entries"
// @Router /attendance/leaderboard [get]
func (h *AttendanceHandler) leaderboard(c *gin.Context) {
	resp, err := h.service.Leaderboard(c.Request.Context())
	if err != nil {
		middleware.SendError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get system registry stats
// @Tags attendance
// @Produce json
// @Success 200 {object} models.SystemStats "Registry stats"
// @Router /attendance/stats [get]
func (h *AttendanceHandler) stats(c *gin.Context) {
	resp, err := h.service.Stats(c.Request.Context())
	if err != nil {
		middleware.SendError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, resp)
}
