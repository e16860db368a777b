package order

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/procura/internal/config"
	"github.com/Additional-Code/procura/internal/entity"
	"github.com/Additional-Code/procura/internal/messaging"
	ordersvc "github.com/Additional-Code/procura/internal/service/order"
	"github.com/Additional-Code/procura/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/procura/worker/order")

// Module registers order-related worker handlers.
var Module = fx.Module("worker_order",
	fx.Provide(
		fx.Annotate(
			NewOrderCreatedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewOrderCreatedHandler sets up a worker handler that records order
// admissions and raises a warning for orders waiting on budget approval.
func NewOrderCreatedHandler(logger *zap.Logger, cfg config.Config) worker.HandlerRegistration {
	handler := func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.orders.process", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
			attribute.Int64("messaging.offset", msg.Offset),
		))
		defer span.End()

		var event ordersvc.OrderCreatedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode order created", zap.Error(err), zap.Int64("offset", msg.Offset))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return fmt.Errorf("decode order created: %w", err)
		}
		span.SetAttributes(
			attribute.String("order.id", event.ID.String()),
			attribute.String("order.status", event.Status),
		)

		fields := []zap.Field{
			zap.Stringer("order_id", event.ID),
			zap.Stringer("project_id", event.ProjectID),
			zap.String("number", event.Number),
			zap.String("status", event.Status),
			zap.String("total_estimated", event.TotalEstimated),
			zap.String("currency", event.Currency),
			zap.Float64("percent_after", event.PercentAfter),
		}
		switch {
		case event.Status == string(entity.OrderStatusPendingApproval):
			logger.Warn("order awaiting budget approval", fields...)
		case event.NearThreshold:
			logger.Warn("order admitted near budget limit", fields...)
		default:
			logger.Info("order created event processed", fields...)
		}

		return nil
	}

	return worker.HandlerRegistration{
		Topic:   cfg.Messaging.Kafka.Topic,
		Handler: handler,
	}
}
