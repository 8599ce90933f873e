package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ErkamTaha/smart-factory/internal/alert"
	"github.com/ErkamTaha/smart-factory/internal/domain"
	"github.com/ErkamTaha/smart-factory/internal/repository"

	"go.uber.org/zap"
)

// SensorHandler 传感器与限值配置Handler
// 变更后使阈值评估器的缓存失效
type SensorHandler struct {
	sensorsRepo repository.SensorsRepository
	evaluator   *alert.Evaluator
	logger      *zap.Logger
}

// NewSensorHandler 创建传感器Handler
func NewSensorHandler(sensorsRepo repository.SensorsRepository, evaluator *alert.Evaluator, logger *zap.Logger) *SensorHandler {
	return &SensorHandler{
		sensorsRepo: sensorsRepo,
		evaluator:   evaluator,
		logger:      logger,
	}
}

// ServeHTTP 实现 http.Handler 接口
func (h *SensorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case path == "/api/v1/sensors" && r.Method == http.MethodGet:
		h.ListSensors(w, r)
	case path == "/api/v1/sensors" && r.Method == http.MethodPost:
		h.CreateSensor(w, r)
	case strings.HasPrefix(path, "/api/v1/sensors/"):
		sensorID := strings.TrimPrefix(path, "/api/v1/sensors/")
		if sensorID == "" || strings.Contains(sensorID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		switch r.Method {
		case http.MethodGet:
			h.GetSensor(w, r, sensorID)
		case http.MethodPut:
			h.UpdateSensor(w, r, sensorID)
		case http.MethodDelete:
			h.DeactivateSensor(w, r, sensorID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// ListSensors 查询传感器列表
func (h *SensorHandler) ListSensors(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active_only") == "true"
	sensors, err := h.sensorsRepo.ListSensors(r.Context(), activeOnly)
	if err != nil {
		h.logger.Error("failed to list sensors", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to list sensors"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(sensors))
}

// GetSensor 查询单个传感器
func (h *SensorHandler) GetSensor(w http.ResponseWriter, r *http.Request, sensorID string) {
	sensor, err := h.sensorsRepo.GetSensor(r.Context(), sensorID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("sensor not found"))
			return
		}
		h.logger.Error("failed to get sensor", zap.String("sensor_id", sensorID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to get sensor"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(sensor))
}

// CreateSensor 创建传感器
func (h *SensorHandler) CreateSensor(w http.ResponseWriter, r *http.Request) {
	var sensor domain.Sensor
	if err := readBodyJSON(r, 1<<20, &sensor); err != nil || sensor.SensorID == "" {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	if err := validateLimits(sensor.Limits); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	if err := h.sensorsRepo.CreateSensor(r.Context(), &sensor); err != nil {
		h.logger.Error("failed to create sensor", zap.String("sensor_id", sensor.SensorID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to create sensor"))
		return
	}
	writeJSON(w, http.StatusCreated, Ok(map[string]string{"sensor_id": sensor.SensorID}))
}

// UpdateSensor 整体替换传感器配置（含限值），并使评估缓存失效
func (h *SensorHandler) UpdateSensor(w http.ResponseWriter, r *http.Request, sensorID string) {
	var sensor domain.Sensor
	if err := readBodyJSON(r, 1<<20, &sensor); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}
	sensor.SensorID = sensorID
	if err := validateLimits(sensor.Limits); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail(err.Error()))
		return
	}

	if err := h.sensorsRepo.UpdateSensor(r.Context(), &sensor); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("sensor not found"))
			return
		}
		h.logger.Error("failed to update sensor", zap.String("sensor_id", sensorID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to update sensor"))
		return
	}

	h.evaluator.InvalidateSensor(sensorID)
	writeJSON(w, http.StatusOK, Ok(map[string]string{"sensor_id": sensorID}))
}

// DeactivateSensor 停用传感器（软删除），停用后读数不再触发报警
func (h *SensorHandler) DeactivateSensor(w http.ResponseWriter, r *http.Request, sensorID string) {
	if err := h.sensorsRepo.DeactivateSensor(r.Context(), sensorID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("sensor not found"))
			return
		}
		h.logger.Error("failed to deactivate sensor", zap.String("sensor_id", sensorID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("failed to deactivate sensor"))
		return
	}

	h.evaluator.InvalidateSensor(sensorID)
	writeJSON(w, http.StatusOK, Ok(map[string]string{"sensor_id": sensorID}))
}

// validateLimits 限值配置校验：至多一个Selected，上下限关系合法
func validateLimits(limits []domain.LimitConfig) error {
	selected := 0
	for i := range limits {
		if limits[i].Selected {
			selected++
		}
		if limits[i].Unit == "" {
			return errors.New("limit unit is required")
		}
		if limits[i].Upper < limits[i].Lower {
			return errors.New("limit upper bound must not be below lower bound")
		}
	}
	if selected > 1 {
		return errors.New("at most one limit config may be selected")
	}
	return nil
}
