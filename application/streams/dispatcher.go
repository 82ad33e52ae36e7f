package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-backend/pkg/common"
	"chat-backend/pkg/observability"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"
)

// Dispatcher runs every matching processor for each record of a stream batch.
type Dispatcher struct {
	registry *Registry
	tracer   *observability.Tracer
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(registry *Registry, tracer *observability.Tracer, metrics *observability.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleBatch processes records in stream order. When a record fails, it and
// every later record are reported as batch item failures so the stream
// redelivers them in their original order; earlier records are acknowledged.
func (d *Dispatcher) HandleBatch(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	var response events.DynamoDBEventResponse

	for i, raw := range event.Records {
		err := d.handleRecord(ctx, raw)
		if err == nil {
			continue
		}

		requestID, _ := common.GetRequestID(ctx)
		d.logger.Error("Stream record failed, returning remainder of batch",
			zap.Error(err),
			zap.String("requestId", requestID),
			zap.String("eventId", raw.EventID),
			zap.String("sequenceNumber", raw.Change.SequenceNumber),
			zap.Int("remaining", len(event.Records)-i),
		)
		for _, rest := range event.Records[i:] {
			response.BatchItemFailures = append(response.BatchItemFailures, events.DynamoDBBatchItemFailure{
				ItemIdentifier: rest.Change.SequenceNumber,
			})
		}
		break
	}
	return response, nil
}

func (d *Dispatcher) handleRecord(ctx context.Context, raw events.DynamoDBEventRecord) error {
	record, err := FromDynamoDBEventRecord(raw)
	if err != nil {
		return err
	}
	return d.Dispatch(ctx, record)
}

// Dispatch offers record to every matching processor. All matches run even
// if one fails; the failures are returned together.
func (d *Dispatcher) Dispatch(ctx context.Context, record ChangeRecord) error {
	matched := d.registry.Match(record)
	if len(matched) == 0 {
		d.logger.Debug("No processor for record",
			zap.String("eventId", record.EventID),
			zap.String("entityType", record.EntityType()),
			zap.String("eventName", string(record.EventName)),
		)
		return nil
	}

	var errs []error
	for _, p := range matched {
		start := time.Now()
		err := d.tracer.TraceFunction(ctx, p.Name(), func(ctx context.Context) error {
			return p.Process(ctx, record)
		})
		d.metrics.RecordProcessorExecution(ctx, p.Name(), time.Since(start), err)

		if err != nil {
			d.logger.Error("Processor failed",
				zap.Error(err),
				zap.String("processor", p.Name()),
				zap.String("eventId", record.EventID),
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
