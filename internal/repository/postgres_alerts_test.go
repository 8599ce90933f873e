package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockAlertsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresAlertsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewPostgresAlertsRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestGetAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	ctx := context.Background()
	alertID := uuid.New().String()
	triggeredAt := time.Now()

	rows := sqlmock.NewRows([]string{
		"alert_id", "sensor_id", "alert_type", "triggered_value", "limit_value",
		"unit", "message", "mqtt_topic", "is_resolved", "triggered_at", "resolved_at",
	}).AddRow(
		alertID, "temp-room1", "upper", 31.0, 30.0,
		"C", "Sensor temp-room1 exceeded upper limit", nil, false, triggeredAt, nil,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(alertID).
		WillReturnRows(rows)

	alert, err := repo.GetAlert(ctx, alertID)

	require.NoError(t, err)
	assert.Equal(t, alertID, alert.AlertID)
	assert.Equal(t, "temp-room1", alert.SensorID)
	assert.Equal(t, domain.AlertKindUpper, alert.Kind)
	assert.Equal(t, 31.0, alert.TriggeredValue)
	assert.Equal(t, "", alert.Topic)
	assert.Nil(t, alert.ResolvedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlert_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	alertID := uuid.New().String()
	mock.ExpectQuery(`SELECT`).
		WithArgs(alertID).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetAlert(context.Background(), alertID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_Success(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	alert := &domain.Alert{
		AlertID:        uuid.New().String(),
		SensorID:       "temp-room1",
		Kind:           domain.AlertKindLower,
		TriggeredValue: 15,
		LimitValue:     20,
		Unit:           "C",
		Message:        "Sensor temp-room1 below lower limit",
		Topic:          "sf/sensors/room1/temp",
		TriggeredAt:    time.Now(),
	}

	mock.ExpectExec(`INSERT INTO ss_alerts`).
		WithArgs(
			alert.AlertID, alert.SensorID, "lower", alert.TriggeredValue, alert.LimitValue,
			alert.Unit, alert.Message, sqlmock.AnyArg(), false, alert.TriggeredAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.CreateAlert(context.Background(), alert))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlert_Validation(t *testing.T) {
	db, _, repo := setupMockAlertsDB(t)
	defer db.Close()

	err := repo.CreateAlert(context.Background(), &domain.Alert{SensorID: "s1"})
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestListAlerts_UnresolvedOnly(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{
		"alert_id", "sensor_id", "alert_type", "triggered_value", "limit_value",
		"unit", "message", "mqtt_topic", "is_resolved", "triggered_at", "resolved_at",
	}).AddRow(
		"a-1", "temp-room1", "upper", 31.0, 30.0,
		"C", "msg", "sf/sensors/room1/temp", false, time.Now(), nil,
	)

	mock.ExpectQuery(`AND sensor_id = \$1 AND is_resolved = false`).
		WithArgs("temp-room1").
		WillReturnRows(rows)

	alerts, err := repo.ListAlerts(context.Background(), AlertsFilter{SensorID: "temp-room1"})
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, "sf/sensors/room1/temp", alerts[0].Topic)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetResolved(t *testing.T) {
	db, mock, repo := setupMockAlertsDB(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`UPDATE ss_alerts SET is_resolved`).
		WithArgs("a-1", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetResolved(context.Background(), "a-1", true, &now))

	// 不存在的报警返回ErrNotFound
	mock.ExpectExec(`UPDATE ss_alerts SET is_resolved`).
		WithArgs("ghost", false, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetResolved(context.Background(), "ghost", false, nil)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}
