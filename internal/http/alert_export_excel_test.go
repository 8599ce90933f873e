package httpapi

import (
	"bytes"
	"testing"
	"time"

	"github.com/ErkamTaha/smart-factory/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestGenerateAlertExport(t *testing.T) {
	triggeredAt := time.Date(2026, 3, 15, 10, 30, 0, 0, time.UTC)
	alerts := []*domain.Alert{
		{
			AlertID:        "a-1",
			SensorID:       "temp-room1",
			Kind:           domain.AlertKindUpper,
			TriggeredValue: 31,
			LimitValue:     30,
			Unit:           "C",
			Message:        "Sensor temp-room1 exceeded upper limit: 31.0 C > 30.0 C",
			Topic:          "sf/sensors/room1/temp",
			TriggeredAt:    triggeredAt,
		},
	}

	data, err := GenerateAlertExport(alerts)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Alerts")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "Alert ID", rows[0][0])
	assert.Equal(t, "a-1", rows[1][0])
	assert.Equal(t, "temp-room1", rows[1][1])
	assert.Equal(t, "upper", rows[1][2])
}

func TestGenerateAlertExport_EmptyHasHeaderOnly(t *testing.T) {
	data, err := GenerateAlertExport(nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Alerts")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, AlertExportHeader, rows[0])
}
