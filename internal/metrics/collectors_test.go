package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct{}

func (fakeSource) ModelSnapshots() []ModelSnapshot {
	return []ModelSnapshot{
		{Mode: "classify", Ready: true, LoadedAt: time.Now().Add(-time.Minute)},
		{Mode: "regress", Ready: false},
	}
}

func (fakeSource) SchemaVersion() string { return "v-test" }

func TestStatusCollector(t *testing.T) {
	c := NewStatusCollector(fakeSource{})

	// schema info + one ready model
	assert.Equal(t, 2, testutil.CollectAndCount(c))

	expected := `
# HELP airquality_schema_info Feature schema in use, value is always 1
# TYPE airquality_schema_info gauge
airquality_schema_info{version="v-test"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "airquality_schema_info"))
}

func TestRecordHelpers(t *testing.T) {
	RecordInference("classify", time.Millisecond, nil)
	RecordInference("classify", time.Millisecond, assert.AnError)
	assert.Equal(t, 1.0, testutil.ToFloat64(InferenceRuns.WithLabelValues("classify", "error")))

	SetModelState("regress", 2)
	assert.Equal(t, 2.0, testutil.ToFloat64(ModelState.WithLabelValues("regress")))
}
