package core

import (
	"context"
	"fmt"
	"strings"
)

const metricPrefix = "onetouch."

type NopMetricsRecorder struct{}

func (NopMetricsRecorder) IncCounter(context.Context, string, int64, map[string]string) {}

func (NopMetricsRecorder) ObserveHistogram(context.Context, string, float64, map[string]string) {}

// OperationCounterName is "onetouch.<operation>.total".
func OperationCounterName(operation string) string {
	return metricPrefix + operation + ".total"
}

// OperationDurationName is "onetouch.<operation>.duration_ms".
func OperationDurationName(operation string) string {
	return metricPrefix + operation + ".duration_ms"
}

// operationTags keeps metric cardinality bounded: payment ids and endpoints
// stay in log fields, only flow and state become tags.
func operationTags(operation string, status string, fields map[string]any) map[string]string {
	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range []string{"flow", "state"} {
		value, ok := fields[key]
		if !ok || value == nil {
			continue
		}
		if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
			tags[key] = text
		}
	}
	return tags
}

func cloneTags(tags map[string]string) map[string]string {
	copied := make(map[string]string, len(tags))
	for key, value := range tags {
		copied[key] = value
	}
	return copied
}
