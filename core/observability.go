package core

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// operationSpan times one public Service call. end emits the counter, the
// duration histogram and a single log line.
type operationSpan struct {
	svc       *Service
	ctx       context.Context
	name      string
	startedAt time.Time
	fields    map[string]any
}

func (s *Service) startSpan(ctx context.Context, operation string, fields map[string]any) *operationSpan {
	name := strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(operation)))
	if name == "" {
		name = "unknown"
	}
	span := &operationSpan{
		svc:       s,
		ctx:       ctx,
		name:      name,
		startedAt: time.Now(),
		fields:    make(map[string]any, len(fields)+4),
	}
	maps.Copy(span.fields, fields)
	return span
}

func (sp *operationSpan) set(key string, value any) {
	sp.fields[key] = value
}

func (sp *operationSpan) end(err error) {
	if sp == nil || sp.svc == nil {
		return
	}
	elapsed := time.Since(sp.startedAt)
	status, level, verb := "success", LogLevelInfo, " succeeded"
	if err != nil {
		status, level, verb = "failure", LogLevelError, " failed"
		sp.fields["error"] = err.Error()
		sp.svc.describeError(sp.fields, err)
	}
	sp.fields["event_type"] = sp.name
	sp.fields["status"] = status
	sp.fields["duration_ms"] = elapsed.Milliseconds()

	if recorder := sp.svc.metricsRecorder; recorder != nil {
		tags := operationTags(sp.name, status, sp.fields)
		recorder.IncCounter(sp.ctx, OperationCounterName(sp.name), 1, cloneTags(tags))
		recorder.ObserveHistogram(sp.ctx, OperationDurationName(sp.name), float64(elapsed.Milliseconds()), tags)
	}
	if sp.svc.logger != nil {
		logWithLevel(sp.ctx, sp.svc.logger, level, sp.name+verb, sp.fields)
	}
}

// describeError adds the go-errors classification of err to fields. Plain
// errors go through the service error mapper first.
func (s *Service) describeError(fields map[string]any, err error) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		mapError := s.errorMapper
		if mapError == nil {
			mapError = MapError
		}
		rich = mapError(err)
	}
	if rich == nil {
		return
	}
	fields["error_category"] = fmt.Sprint(rich.Category)
	fields["error_severity"] = fmt.Sprint(rich.Severity)
	if rich.TextCode != "" {
		fields["error_text_code"] = rich.TextCode
	}
	if len(rich.Metadata) > 0 {
		for _, key := range []string{"request_id", "trace_id", "payment_id"} {
			value, ok := rich.Metadata[key]
			if _, taken := fields[key]; ok && !taken {
				fields[key] = value
			}
		}
		fields["error_metadata"] = RedactSensitiveMap(rich.Metadata)
	}
	if mismatch := (*SignatureMismatchError)(nil); errors.As(err, &mismatch) {
		fields["severity"] = "critical"
	}
}

func logWithLevel(ctx context.Context, logger Logger, level LogLevel, message string, fields map[string]any) {
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if withFields, ok := logger.(FieldsLogger); ok {
		logger = withFields.WithFields(maps.Clone(fields))
	}
	args := make([]any, 0, len(fields)*2)
	for _, key := range slices.Sorted(maps.Keys(fields)) {
		args = append(args, key, fields[key])
	}
	switch level {
	case LogLevelError:
		logger.Error(message, args...)
	case LogLevelWarn:
		logger.Warn(message, args...)
	case LogLevelDebug:
		logger.Debug(message, args...)
	default:
		logger.Info(message, args...)
	}
}

// LoggerRequestSink writes request/response pairs to a glog logger.
type LoggerRequestSink struct {
	Logger Logger
}

func (s LoggerRequestSink) LogExchange(ctx context.Context, entry RequestLogEntry) {
	if s.Logger == nil {
		return
	}
	fields := map[string]any{
		"endpoint":    entry.Endpoint,
		"params":      entry.Params,
		"status_code": entry.StatusCode,
		"duration_ms": entry.Duration.Milliseconds(),
	}
	if entry.Err != nil {
		fields["error"] = entry.Err.Error()
	}
	level := entry.Level
	if level == "" {
		level = LogLevelDebug
	}
	logWithLevel(ctx, s.Logger, level, "onetouch exchange "+entry.Endpoint, fields)
}
