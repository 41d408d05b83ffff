package loader

import (
	"time"

	"github.com/asaidimu/go-dataloader/core/query"
)

func createEvent(
	eventType LoadEventType,
	operation string,
	props query.Props,
	selectString string,
	output *query.QueryResult,
	err *string,
	startTime time.Time,
) LoadEvent {
	var duration *int64
	if !startTime.IsZero() {
		d := time.Since(startTime).Milliseconds()
		duration = &d
	}

	var sel *string
	if selectString != "" {
		sel = &selectString
	}

	return LoadEvent{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
		Operation: operation,
		Table:     props.Table,
		Input:     &props,
		Select:    sel,
		Output:    output,
		Error:     err,
		Duration:  duration,
	}
}

// emitEvent is a helper method to emit events
func (l *Loader) emitEvent(event LoadEvent) {
	if l.bus != nil {
		l.bus.Emit(string(event.Type), event)
	}
}

// withEventEmission wraps a load with start, success and failure events. A
// result whose Error is set counts as a failure even though fn returned no
// error.
func (l *Loader) withEventEmission(
	operation string,
	props query.Props,
	fn func() (*query.Plan, *query.QueryResult, error),
) (*query.QueryResult, error) {
	startTime := time.Now()
	l.emitEvent(createEvent(LoadStart, operation, props, "", nil, nil, startTime))

	plan, result, err := fn()

	sel := ""
	if plan != nil {
		sel = plan.Select
	}

	if err != nil {
		errStr := err.Error()
		l.emitEvent(createEvent(LoadFailed, operation, props, sel, nil, &errStr, startTime))
		return nil, err
	}

	if result.Error != nil {
		errStr := result.Error.Error()
		l.emitEvent(createEvent(LoadFailed, operation, props, sel, result, &errStr, startTime))
		return result, nil
	}

	l.emitEvent(createEvent(LoadSuccess, operation, props, sel, result, nil, startTime))
	return result, nil
}
