package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// NewProvider installs the global meter provider. Disabled configs get a
// noop provider so instruments can always be created.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.StopHook(func(ctx context.Context) error {
			log.Info("shutting down meter provider")
			return provider.Shutdown(ctx)
		}))
	}
	log.Info("metrics exporter configured",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

// Counter names, one per billing event.
const (
	gatewayOrdersTotal  = "carebill_gateway_orders_total"
	settlementsTotal    = "carebill_settlements_total"
	manualPaymentsTotal = "carebill_manual_payments_total"
	billViewsTotal      = "carebill_bill_views_total"
)

// Metrics exposes billing counters. A nil *Metrics discards everything.
type Metrics struct {
	counters map[string]metric.Int64Counter
}

// New creates the billing counters on the service meter.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "carebill"
	}
	meter := provider.Meter(name)

	m := &Metrics{counters: map[string]metric.Int64Counter{}}
	for _, counter := range []string{gatewayOrdersTotal, settlementsTotal, manualPaymentsTotal, billViewsTotal} {
		c, err := meter.Int64Counter(counter)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", counter, err)
		}
		m.counters[counter] = c
	}
	return m, nil
}

// RecordGatewayOrder counts order creation attempts by outcome.
func (m *Metrics) RecordGatewayOrder(ctx context.Context, outcome string) {
	m.inc(ctx, gatewayOrdersTotal, attribute.String("outcome", strings.TrimSpace(outcome)))
}

// RecordSettlement counts gateway callbacks by outcome.
func (m *Metrics) RecordSettlement(ctx context.Context, outcome string) {
	m.inc(ctx, settlementsTotal, attribute.String("outcome", strings.TrimSpace(outcome)))
}

func (m *Metrics) RecordManualPayment(ctx context.Context, method string) {
	m.inc(ctx, manualPaymentsTotal, attribute.String("method", strings.TrimSpace(method)))
}

func (m *Metrics) RecordBillView(ctx context.Context, role string) {
	m.inc(ctx, billViewsTotal, attribute.String("role", strings.TrimSpace(role)))
}

func (m *Metrics) inc(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	c, ok := m.counters[name]
	if !ok {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"outcome":     {},
	"method":      {},
	"role":        {},
	"route":       {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips labels outside the allowlist so patient or payment
// identifiers never become metric dimensions.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
