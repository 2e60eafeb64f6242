package app

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"availability-service/internal/availability"
)

const readinessTimeout = 2 * time.Second

// GET /users/:id/availability
func (a *App) ListAvailabilityHandler(c *gin.Context) {
	userID := c.Param("id")
	rules, err := a.Rules.ListAvailabilityRules(c.Request.Context(), userID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GET /users/:id/slots?date=YYYY-MM-DD&duration=30&buffer=0
func (a *App) GetSlotsHandler(c *gin.Context) {
	userID := c.Param("id")
	dateStr := c.Query("date")
	if dateStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date required (YYYY-MM-DD)"})
		return
	}
	date, err := time.Parse(time.DateOnly, dateStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date"})
		return
	}
	duration, ok := intQuery(c, "duration", 0, true)
	if !ok {
		return
	}
	buffer, ok := intQuery(c, "buffer", 0, false)
	if !ok {
		return
	}

	slots, err := a.Engine.ComputeAvailableSlots(c.Request.Context(), userID, date, duration, buffer)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, slots)
}

type checkConflictsReq struct {
	Start            string `json:"start" binding:"required"` // RFC3339
	End              string `json:"end" binding:"required"`
	ExcludeBookingID string `json:"exclude_booking_id,omitempty"`
}

// POST /users/:id/conflicts
func (a *App) CheckConflictsHandler(c *gin.Context) {
	userID := c.Param("id")
	var req checkConflictsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	start, err := time.Parse(time.RFC3339, req.Start)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start"})
		return
	}
	end, err := time.Parse(time.RFC3339, req.End)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end"})
		return
	}

	result, err := a.Engine.CheckConflicts(c.Request.Context(), userID, start, end, req.ExcludeBookingID)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GET /users/:id/suggestions?preferred_start=ISO&duration=30&search_days=7&max=5
func (a *App) SuggestAlternativesHandler(c *gin.Context) {
	userID := c.Param("id")
	preferredStr := c.Query("preferred_start")
	if preferredStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "preferred_start required (ISO8601)"})
		return
	}
	preferred, err := time.Parse(time.RFC3339, preferredStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid preferred_start"})
		return
	}
	duration, ok := intQuery(c, "duration", 0, true)
	if !ok {
		return
	}
	searchDays, ok := intQuery(c, "search_days", 0, false)
	if !ok {
		return
	}
	limit, ok := intQuery(c, "max", 0, false)
	if !ok {
		return
	}

	starts, err := a.Engine.SuggestAlternatives(c.Request.Context(), userID, preferred, duration, searchDays, limit)
	if err != nil {
		a.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": starts})
}

// GET /healthz
func (a *App) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GET /readyz
func (a *App) ReadyHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	failed := gin.H{}
	for name, check := range a.Checks {
		if err := check(ctx); err != nil {
			a.Logger.Warn("readiness check failed", zap.String("check", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// intQuery reads an integer query parameter, writing a 400 and returning
// false when it is malformed or required but missing.
func intQuery(c *gin.Context, name string, def int, required bool) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		if required {
			c.JSON(http.StatusBadRequest, gin.H{"error": name + " required"})
			return 0, false
		}
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return n, true
}

func (a *App) writeError(c *gin.Context, err error) {
	var (
		validation *availability.ValidationError
		configErr  *availability.ConfigurationError
	)
	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &configErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		a.Logger.Error("request failed",
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
