package export

import (
	"bytes"
	"testing"
	"time"

	"roadassist/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteRequests(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	completed := created.Add(2 * time.Hour)
	mechanic := int64(7)
	cost := 150.5

	reqs := []*models.ServiceRequest{
		{
			RequestID: "SR-20240301-AAAAAAAA", Status: models.StatusCompleted, ServiceType: models.ServiceFlatTire,
			VehicleType: models.VehicleCar, VehicleMake: "Toyota", VehicleModel: "Corolla", VehicleNumber: "MH01AB1234",
			EndUserID: 3, MechanicID: &mechanic, Address: "Andheri", Latitude: 19.1, Longitude: 72.8,
			Cost: &cost, CreatedAt: created, CompletedAt: &completed,
		},
		{
			RequestID: "SR-20240301-BBBBBBBB", Status: models.StatusPending, ServiceType: models.ServiceTowing,
			VehicleType: models.VehicleTruck, EndUserID: 4, Address: "Bandra", CreatedAt: created,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRequests(&buf, reqs, created))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetName}, f.GetSheetList())

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Request ID", rows[0][0])
	assert.Equal(t, "SR-20240301-AAAAAAAA", rows[1][0])
	assert.Equal(t, models.StatusCompleted, rows[1][1])
	assert.Equal(t, "CAR Toyota Corolla (MH01AB1234)", rows[1][3])
	assert.Equal(t, "7", rows[1][5])
	assert.Equal(t, "2024-03-01 11:30", rows[1][12])
	assert.Equal(t, "TRUCK", rows[2][3])
	assert.Equal(t, "", rows[2][5])
}

func TestWriteRequestsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRequests(&buf, nil, time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
