package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type queryStartKey struct{}

type queryStart struct {
	span      trace.Span
	operation string
	at        time.Time
}

// PGXTracer implements pgx.QueryTracer. Each statement gets a span and, when
// Latency is set, a duration sample labelled by SQL verb.
type PGXTracer struct {
	Latency *prometheus.HistogramVec
}

// NewPGXTracer registers the query latency histogram under namespace.
func NewPGXTracer(namespace string, reg prometheus.Registerer) *PGXTracer {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	t := &PGXTracer{Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_ms",
		Help:      "Latency of Postgres statements issued by the catalog and coupon store.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
	}, []string{"operation", "result"})}
	t.Latency = register(reg, t.Latency)
	return t
}

// TraceQueryStart starts a span for the SQL statement.
func (t *PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := sqlOperation(data.SQL)
	ctx, span := otel.Tracer("db.pgx").Start(ctx, "pgx."+op)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", truncateSQL(data.SQL)),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{span: span, operation: op, at: time.Now()})
}

// TraceQueryEnd ends the span and records any error.
func (t *PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	result := "ok"
	if data.Err != nil {
		start.span.RecordError(data.Err)
		start.span.SetStatus(codes.Error, data.Err.Error())
		result = "error"
	}
	start.span.End()
	if t.Latency != nil {
		t.Latency.WithLabelValues(start.operation, result).Observe(DurationMillis(time.Since(start.at)))
	}
}

func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	return strings.ToLower(fields[0])
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > 300 {
		return trimmed[:300] + "..."
	}
	return trimmed
}
