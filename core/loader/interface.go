// Package loader runs data-loading descriptors against a query engine. It
// compiles a descriptor, executes it once, shapes the response and reports
// each load on an event bus.
package loader

import (
	"context"

	"github.com/asaidimu/go-dataloader/core/query"
)

// LoadEventType names the events emitted by a Loader.
type LoadEventType string

const (
	LoadStart   LoadEventType = "load:start"
	LoadSuccess LoadEventType = "load:success"
	LoadFailed  LoadEventType = "load:failed"
)

// LoadEvent describes one phase of a load.
type LoadEvent struct {
	Type      LoadEventType      `json:"type"`
	Timestamp int64              `json:"timestamp"` // Unix milliseconds.
	Operation string             `json:"operation"`
	Table     string             `json:"table"`
	Input     *query.Props       `json:"input,omitempty"` // The descriptor, after defaults.
	Select    *string            `json:"select,omitempty"`
	Output    *query.QueryResult `json:"output,omitempty"`
	Error     *string            `json:"error,omitempty"`
	Duration  *int64             `json:"duration,omitempty"` // Milliseconds.
	Context   map[string]any     `json:"context,omitempty"`
}

// EventCallbackFunction receives load events.
type EventCallbackFunction func(ctx context.Context, event LoadEvent) error

// RegisterSubscriptionOptions defines options for registering a subscription.
type RegisterSubscriptionOptions struct {
	Event       LoadEventType `json:"event"`
	Label       *string       `json:"label,omitempty"`
	Description *string       `json:"description,omitempty"`
	Callback    EventCallbackFunction
}

// SubscriptionInfo describes a registered subscription.
type SubscriptionInfo struct {
	Id          *string       `json:"id,omitempty"`
	Event       LoadEventType `json:"event"`
	Label       *string       `json:"label,omitempty"`
	Description *string       `json:"description,omitempty"`
	Unsubscribe func()        `json:"-"`
}

// Options configures a Loader. Zero fields fall back to DefaultOptions.
type Options struct {
	// Count is used when a descriptor leaves its count mode empty.
	Count query.CountType `mapstructure:"count"`
	// Join is used when a descriptor leaves its join type empty.
	Join query.JoinType `mapstructure:"join"`
	// PageSize is reported in pagination metadata when a descriptor has no limit.
	PageSize int `mapstructure:"page_size"`
	// SkipValidation disables Props.Validate before compiling.
	SkipValidation bool `mapstructure:"skip_validation"`
	// Strict validates with Props.ValidateStrict, rejecting pages below 1,
	// negative limits and sort directions other than asc and desc.
	Strict bool `mapstructure:"strict"`
}

// DefaultOptions returns the loader defaults: exact counts, inner joins for
// related-table columns and a page size of 10.
func DefaultOptions() *Options {
	return &Options{
		Count:    query.CountExact,
		Join:     query.JoinTypeInner,
		PageSize: 10,
	}
}
