package handler

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"fyts-validation/internal/models"
	"fyts-validation/internal/scheduler"
	"fyts-validation/internal/service"
	"fyts-validation/internal/tracking"
	"fyts-validation/pkg/errors"
	"fyts-validation/pkg/logger"
)

// maxSamplesPerRequest 单次上报样本数上限
const maxSamplesPerRequest = 500

// writeError 按错误码映射 HTTP 状态，内部错误不向客户端暴露细节
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	switch {
	case errors.HasCode(err, errors.ErrInvalidAddress),
		errors.HasCode(err, errors.ErrInvalidStatus),
		errors.HasCode(err, errors.ErrInvalidAmount):
		status = http.StatusBadRequest
		message = err.Error()
	case errors.HasCode(err, errors.ErrSessionNotFound),
		errors.HasCode(err, errors.ErrRunNotFoundCode):
		status = http.StatusNotFound
		message = err.Error()
	default:
		logger.WithFields(map[string]interface{}{
			"path":  c.FullPath(),
			"error": err,
		}).Error("request failed")
	}

	c.JSON(status, gin.H{"error": message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}

type SessionHandler struct {
	sessions *service.SessionManager
}

func NewSessionHandler(sessions *service.SessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Start(c *gin.Context) {
	var req struct {
		Wallet string `json:"wallet"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Wallet == "" {
		badRequest(c, "wallet is required")
		return
	}

	s, err := h.sessions.Start(c.Request.Context(), req.Wallet)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h *SessionHandler) Get(c *gin.Context) {
	s, err := h.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *SessionHandler) AddSamples(c *gin.Context) {
	var req struct {
		Samples []tracking.Sample `json:"samples"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if len(req.Samples) == 0 {
		badRequest(c, "samples is required")
		return
	}
	if len(req.Samples) > maxSamplesPerRequest {
		badRequest(c, "too many samples in one request")
		return
	}

	result, err := h.sessions.AddSamples(c.Request.Context(), c.Param("id"), req.Samples)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) ReportError(c *gin.Context) {
	var req struct {
		Message string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	s, err := h.sessions.ReportError(c.Request.Context(), c.Param("id"), req.Message)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h *SessionHandler) Stop(c *gin.Context) {
	run, err := h.sessions.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

type RunHandler struct {
	runSvc *service.RunService
}

func NewRunHandler(runSvc *service.RunService) *RunHandler {
	return &RunHandler{runSvc: runSvc}
}

func (h *RunHandler) History(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		badRequest(c, "wallet is required")
		return
	}

	history, err := h.runSvc.History(c.Request.Context(), wallet)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}

func (h *RunHandler) Get(c *gin.Context) {
	run, err := h.runSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *RunHandler) Leaderboard(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit < 1 || limit > 100 {
		limit = 10
	}

	runs, err := h.runSvc.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": runs, "limit": limit})
}

// ExportTrigger 由 *scheduler.ExportScheduler 实现
type ExportTrigger interface {
	TriggerExport(ctx context.Context) (*scheduler.ExportResult, error)
}

type AdminHandler struct {
	runSvc   *service.RunService
	exporter ExportTrigger
}

func NewAdminHandler(runSvc *service.RunService, exporter ExportTrigger) *AdminHandler {
	return &AdminHandler{runSvc: runSvc, exporter: exporter}
}

func (h *AdminHandler) ListRuns(c *gin.Context) {
	status := models.RunStatus(strings.ToLower(c.Query("status")))
	if status == "all" {
		status = ""
	}

	list, err := h.runSvc.AdminList(c.Request.Context(), status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *AdminHandler) Approve(c *gin.Context) {
	h.setStatus(c, models.RunStatusApproved)
}

func (h *AdminHandler) Reject(c *gin.Context) {
	h.setStatus(c, models.RunStatusRejected)
}

func (h *AdminHandler) setStatus(c *gin.Context, status models.RunStatus) {
	id := c.Param("id")
	if err := h.runSvc.SetStatus(c.Request.Context(), id, status); err != nil {
		writeError(c, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"run_id": id,
		"status": status,
		"admin":  c.GetString(adminSubjectKey),
	}).Info("admin review")
	c.JSON(http.StatusOK, gin.H{"id": id, "status": status})
}

// Export 直接下载 wallet,tokens,run_id 格式的 CSV
func (h *AdminHandler) Export(c *gin.Context) {
	var buf bytes.Buffer
	if _, err := h.runSvc.ExportApproved(c.Request.Context(), &buf); err != nil {
		writeError(c, err)
		return
	}

	filename := "approved-runs-" + time.Now().UTC().Format("2006-01-02") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// TriggerExport 立即执行一次定时导出任务（写文件，按配置上传 S3）
func (h *AdminHandler) TriggerExport(c *gin.Context) {
	if h.exporter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "export job is not configured"})
		return
	}

	result, err := h.exporter.TriggerExport(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
