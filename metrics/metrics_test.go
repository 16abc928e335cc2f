package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Nowaterisenough/EmbeddedTemplate/config"
	"github.com/Nowaterisenough/EmbeddedTemplate/hylink"
	"github.com/Nowaterisenough/EmbeddedTemplate/scheduler"
)

func TestCollectorEmitsSchedulerAndLinkMetrics(t *testing.T) {
	sched, err := scheduler.New(config.Default())
	require.NoError(t, err)
	_, err = sched.TaskCreate(func(any) {}, "probe", 0, nil, 0)
	require.NoError(t, err)

	link := hylink.NewParser(nil)
	link.Feed([]byte{0x00, 0xFF}) // a couple of bytes to exercise the parser harmlessly

	c := NewCollector(sched, link)

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))

	families, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]*dto.MetricFamily{}
	for _, f := range families {
		names[f.GetName()] = f
	}

	assert.Contains(t, names, "fw_scheduler_tasks")
	assert.Contains(t, names, "fw_hylink_packets_total")
	assert.Equal(t, float64(1), names["fw_scheduler_tasks"].Metric[0].GetGauge().GetValue())
}
