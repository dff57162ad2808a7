package workset

import (
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 引擎的 prometheus 指标
type Metrics struct {
	commandCounter *prometheus.CounterVec
	bulkDuration   *prometheus.HistogramVec
	tableRows      *prometheus.GaugeVec
}

// NewMetrics 创建指标，registerer 为 nil 时不注册
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	metrics := &Metrics{
		commandCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tablex_engine_commands_total",
				Help: "Total number of engine commands",
			},
			[]string{"command", "status"},
		),
		bulkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tablex_engine_bulk_duration_seconds",
				Help:    "Duration of bulk operations in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
			[]string{"kind", "status"},
		),
		tableRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tablex_engine_table_rows",
				Help: "Number of records held in the working set per table",
			},
			[]string{"table"},
		),
	}

	if registerer != nil {
		for _, collector := range []prometheus.Collector{metrics.commandCounter, metrics.bulkDuration, metrics.tableRows} {
			if err := registerer.Register(collector); err != nil {
				return nil, errors.Wrap(err, "register engine metrics failed")
			}
		}
	}
	return metrics, nil
}

func (m *Metrics) observeCommand(command string, err error) {
	if m == nil {
		return
	}
	m.commandCounter.WithLabelValues(command, statusOf(err)).Inc()
}

func (m *Metrics) observeBulk(kind BulkKind, status TaskStatus, seconds float64) {
	if m == nil {
		return
	}
	m.bulkDuration.WithLabelValues(string(kind), string(status)).Observe(seconds)
}

func (m *Metrics) observeRows(tables []*Table) {
	if m == nil {
		return
	}
	m.tableRows.Reset()
	for _, t := range tables {
		m.tableRows.WithLabelValues(t.Name).Set(float64(t.RowCount()))
	}
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
