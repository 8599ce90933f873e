package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/alert"
	"github.com/ErkamTaha/smart-factory/internal/domain"
	"github.com/ErkamTaha/smart-factory/internal/repository"

	"go.uber.org/zap"
)

// AlertHandler 报警查询与状态翻转Handler
type AlertHandler struct {
	alertsRepo repository.AlertsRepository
	evaluator  *alert.Evaluator
	logger     *zap.Logger
}

// NewAlertHandler 创建报警Handler
func NewAlertHandler(alertsRepo repository.AlertsRepository, evaluator *alert.Evaluator, logger *zap.Logger) *AlertHandler {
	return &AlertHandler{
		alertsRepo: alertsRepo,
		evaluator:  evaluator,
		logger:     logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *AlertHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/alerts" && r.Method == http.MethodGet:
		h.ListAlerts(w, r)
	case path == "/api/v1/alerts/export" && r.Method == http.MethodGet:
		h.ExportAlerts(w, r)
	case strings.HasSuffix(path, "/resolve") && r.Method == http.MethodPost:
		alertID := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/alerts/"), "/resolve")
		if alertID == "" || strings.Contains(alertID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.ResolveAlert(w, r, alertID)
	case strings.HasSuffix(path, "/revert") && r.Method == http.MethodPost:
		alertID := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/alerts/"), "/revert")
		if alertID == "" || strings.Contains(alertID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.RevertAlert(w, r, alertID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func alertsFilterFromQuery(r *http.Request) repository.AlertsFilter {
	return repository.AlertsFilter{
		SensorID:        r.URL.Query().Get("sensor_id"),
		IncludeResolved: r.URL.Query().Get("include_resolved") == "true",
		Limit:           parseInt(r.URL.Query().Get("limit"), 0),
	}
}

// ListAlerts 查询报警列表（支持sensor_id/include_resolved/limit过滤）
func (h *AlertHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alertsRepo.ListAlerts(r.Context(), alertsFilterFromQuery(r))
	if err != nil {
		h.logger.Error("failed to list alerts", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list alerts"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(alerts))
}

// ExportAlerts 导出报警列表为Excel文件
func (h *AlertHandler) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.alertsRepo.ListAlerts(r.Context(), alertsFilterFromQuery(r))
	if err != nil {
		h.logger.Error("failed to list alerts for export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to export alerts"))
		return
	}

	data, err := GenerateAlertExport(alerts)
	if err != nil {
		h.logger.Error("failed to generate alert export", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to export alerts"))
		return
	}

	filename := fmt.Sprintf("alerts_%s.xlsx", time.Now().UTC().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ResolveAlert 标记报警已解决（幂等）
func (h *AlertHandler) ResolveAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	if err := h.evaluator.Resolve(r.Context(), alertID); err != nil {
		h.writeAlertError(w, "resolve alert", alertID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"alert_id": alertID}))
}

// RevertAlert 撤销误解决，报警重新变为未解决（幂等）
func (h *AlertHandler) RevertAlert(w http.ResponseWriter, r *http.Request, alertID string) {
	if err := h.evaluator.Revert(r.Context(), alertID); err != nil {
		h.writeAlertError(w, "revert alert", alertID, err)
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"alert_id": alertID}))
}

func (h *AlertHandler) writeAlertError(w http.ResponseWriter, op, alertID string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, Fail("alert not found"))
		return
	}
	h.logger.Error("alert operation failed",
		zap.String("op", op),
		zap.String("alert_id", alertID),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
}
