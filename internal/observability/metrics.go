package observability

import (
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	stdoutmetric "go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/zap"
)

const (
	stdoutMetricsInterval = 30 * time.Second

	// BudgetPercentInstrument records the budget utilisation an order leaves behind.
	BudgetPercentInstrument = "procurement.budget.percent_after"
)

// budgetPercentBuckets are centred on the 80% warning and 100% approval thresholds.
var budgetPercentBuckets = []float64{25, 50, 70, 80, 90, 95, 100, 110, 125, 150, 200}

func (m *Manager) initMetrics(resource *sdkresource.Resource) error {
	var reader sdkmetric.Reader

	switch strings.ToLower(m.cfg.MetricsExporter) {
	case "prometheus":
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return err
		}
		reader = exporter
		m.metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint(), stdoutmetric.WithWriter(os.Stdout))
		if err != nil {
			return err
		}
		reader = sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(stdoutMetricsInterval))
	default:
		if m.logger != nil {
			m.logger.Warn("unsupported metrics exporter; metrics disabled", zap.String("exporter", m.cfg.MetricsExporter))
		}
		return nil
	}

	m.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(resource),
		sdkmetric.WithView(budgetPercentView()),
	)
	return nil
}

func budgetPercentView() sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: BudgetPercentInstrument},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: budgetPercentBuckets}},
	)
}
