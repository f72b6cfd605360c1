package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"dialer-engine/internal/attempts"
	"dialer-engine/internal/audit"
	"dialer-engine/internal/auth"
	"dialer-engine/internal/campaigns"
	"dialer-engine/internal/compliance"
	"dialer-engine/internal/dialer"
	"dialer-engine/internal/metrics"
	"dialer-engine/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth  *auth.Manager
	Users *auth.UserTable

	Campaigns    *campaigns.Service
	Orchestrator *dialer.Orchestrator
	Attempts     attempts.Store

	Settings   compliance.SettingsStore
	Violations compliance.ViolationRepository

	Metrics   *metrics.Service
	Collector *metrics.Collector

	Audit *audit.Service
}

// abortError maps service sentinel errors onto HTTP statuses.
func abortError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, campaigns.ErrNotFound), errors.Is(err, attempts.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, campaigns.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, campaigns.ErrInvalidArgument),
		errors.Is(err, attempts.ErrInvalidArgument),
		errors.Is(err, compliance.ErrInvalidArgument),
		errors.Is(err, compliance.ErrInvalidSettings):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("request failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

/* ===================== AUTH ===================== */

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Username == "" || req.Password == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "username, password required"})
		return
	}
	role, err := h.Users.Authenticate(req.Username, req.Password)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "bad credentials"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.Username, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	// Role comes from the user table, not the refresh token, so a role
	// change takes effect at the next refresh.
	role, err := h.Users.Role(claims.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unknown user"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), claims.UserID, role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

/* ===================== CAMPAIGNS ===================== */

func (h Handlers) ListCampaigns(c *gin.Context) {
	list, err := h.Campaigns.List(c.Request.Context())
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"campaigns": list, "total": len(list)})
}

func (h Handlers) CreateCampaign(c *gin.Context) {
	var req campaigns.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	created, err := h.Campaigns.Create(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h Handlers) GetCampaign(c *gin.Context) {
	got, err := h.Campaigns.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, got)
}

type statusRequest struct {
	Status string `json:"status"`
	// CallsPerMinute, when present, repaces the campaign. It can ride
	// along with a status change or come alone.
	CallsPerMinute *int `json:"calls_per_minute"`
}

// UpdateCampaignStatus drives the operator-facing lifecycle:
// "running" starts a queued campaign or resumes a paused one,
// "paused" pauses a running one. A calls_per_minute field adjusts
// pacing, live when the campaign is running.
func (h Handlers) UpdateCampaignStatus(c *gin.Context) {
	id := c.Param("id")
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Status == "" && req.CallsPerMinute == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status or calls_per_minute required"})
		return
	}

	var updated campaigns.Campaign
	if req.CallsPerMinute != nil {
		var err error
		updated, err = h.Orchestrator.UpdateRate(c.Request.Context(), id, *req.CallsPerMinute)
		if err != nil {
			abortError(c, err)
			return
		}
		if req.Status == "" {
			c.JSON(http.StatusOK, updated)
			return
		}
	}

	cur, err := h.Campaigns.Get(c.Request.Context(), id)
	if err != nil {
		abortError(c, err)
		return
	}

	switch campaigns.CampaignStatus(req.Status) {
	case campaigns.StatusRunning:
		if cur.Status == campaigns.StatusPaused {
			updated, err = h.Orchestrator.Resume(c.Request.Context(), id)
		} else {
			updated, err = h.Orchestrator.Start(c.Request.Context(), id)
		}
	case campaigns.StatusPaused:
		updated, err = h.Orchestrator.Pause(c.Request.Context(), id)
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "status must be running or paused"})
		return
	}
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteCampaign cancels the campaign. The record and its attempt log
// remain; only the run is terminated.
func (h Handlers) DeleteCampaign(c *gin.Context) {
	canceled, err := h.Orchestrator.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, canceled)
}

func (h Handlers) GetCampaignLogs(c *gin.Context) {
	id := c.Param("id")
	// 404 for unknown campaigns instead of a silent empty page.
	if _, err := h.Campaigns.Get(c.Request.Context(), id); err != nil {
		abortError(c, err)
		return
	}
	q := attempts.LogQuery{
		Page:    intQuery(c, "page", 1),
		PerPage: intQuery(c, "per_page", 50),
		Search:  c.Query("search"),
	}
	rows, total, err := h.Attempts.ListByCampaign(c.Request.Context(), id, q)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"logs":     rows,
		"total":    total,
		"page":     q.Page,
		"per_page": q.PerPage,
	})
}

/* ===================== COMPLIANCE ===================== */

func (h Handlers) GetDashboardMetrics(c *gin.Context) {
	if h.Collector != nil {
		if d, ok := h.Collector.Latest(); ok {
			c.JSON(http.StatusOK, d)
			return
		}
	}
	// Before the first collector tick, compute directly.
	d, err := h.Metrics.Dashboard(c.Request.Context())
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h Handlers) GetComplianceSettings(c *gin.Context) {
	s, err := h.Settings.Get(c.Request.Context())
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) UpdateComplianceSettings(c *gin.Context) {
	var req compliance.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	saved, err := h.Settings.Put(c.Request.Context(), req)
	if err != nil {
		abortError(c, err)
		return
	}
	if h.Audit != nil {
		actor, _ := auth.UserID(c.Request.Context())
		meta, _ := json.Marshal(saved)
		_ = h.Audit.LogSettingsUpdate(c.Request.Context(), actor,
			fmt.Sprintf("compliance settings updated to version %d", saved.Version), string(meta))
	}
	c.JSON(http.StatusOK, saved)
}

func (h Handlers) ListViolations(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}
	page := intQuery(c, "page", 1)
	perPage := intQuery(c, "per_page", 50)
	rows, total, err := h.Violations.ListRange(c.Request.Context(), from, to, page, perPage)
	if err != nil {
		abortError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"violations": rows,
		"total":      total,
		"page":       page,
		"per_page":   perPage,
	})
}

func (h Handlers) ExportViolations(c *gin.Context) {
	from, to, ok := timeRange(c)
	if !ok {
		return
	}
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", `attachment; filename="violations.csv"`)
	c.Status(http.StatusOK)
	if err := metrics.ExportViolationsCSV(c.Request.Context(), c.Writer, h.Violations, from, to); err != nil {
		// Headers are gone; all we can do is log and cut the stream.
		logger.FromGin(c).Error("violations export failed", "err", err)
	}
}

/* ===================== HELPERS ===================== */

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// timeRange parses optional RFC3339 from/to query params. On a malformed
// value it writes a 400 and returns ok=false.
func timeRange(c *gin.Context) (from, to time.Time, ok bool) {
	parse := func(name string) (time.Time, bool) {
		raw := c.Query(name)
		if raw == "" {
			return time.Time{}, true
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be RFC3339"})
			return time.Time{}, false
		}
		return t, true
	}
	if from, ok = parse("from"); !ok {
		return
	}
	to, ok = parse("to")
	return
}
