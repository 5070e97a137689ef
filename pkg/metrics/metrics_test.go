package metrics

import (
	"database/sql"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDBStats(t *testing.T) {
	RecordDBStats(sql.DBStats{
		OpenConnections: 5,
		Idle:            2,
		InUse:           3,
	})

	assert.Equal(t, 5.0, testutil.ToFloat64(DatabaseConnectionsGauge.WithLabelValues("open")))
	assert.Equal(t, 2.0, testutil.ToFloat64(DatabaseConnectionsGauge.WithLabelValues("idle")))
	assert.Equal(t, 3.0, testutil.ToFloat64(DatabaseConnectionsGauge.WithLabelValues("in_use")))
}
