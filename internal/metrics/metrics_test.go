package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequest("GET", 200, 10*time.Millisecond)
	c.RecordRequest("GET", 200, 20*time.Millisecond)
	c.RecordRequest("POST", 401, 5*time.Millisecond)
	c.RecordRefresh(true)
	c.RecordRefresh(false)
	c.RecordRefresh(false)
	c.RecordLiveMessage("new_reply", true)
	c.RecordLiveMessage("new_reply", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.requests.WithLabelValues("GET", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.requests.WithLabelValues("POST", "401")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.refreshes.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.refreshes.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.liveMessages.WithLabelValues("new_reply", "false")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.requestLatency))
}

func TestNoopSatisfiesRecorder(t *testing.T) {
	var r Recorder = Noop{}
	assert.NotPanics(t, func() {
		r.RecordRequest("GET", 200, time.Second)
		r.RecordRefresh(true)
		r.RecordLiveMessage("x", false)
	})
}
