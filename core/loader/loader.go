package loader

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/utils"
	"github.com/asaidimu/go-events"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNilClient is returned when a Loader is created without an engine client.
var ErrNilClient = errors.New("query client cannot be nil")

// Loader compiles descriptors and runs them against a query engine. Each Load
// issues exactly one engine call. A Loader is safe for concurrent use.
type Loader struct {
	client        query.Client
	compiler      *query.Compiler
	options       *Options
	logger        *zap.Logger
	subscriptions map[string]*SubscriptionInfo
	subMu         sync.RWMutex
	bus           *events.TypedEventBus[LoadEvent]
}

// NewLoader creates a loader over client. Nil logger and options fall back to
// a no-op logger and DefaultOptions.
func NewLoader(client query.Client, logger *zap.Logger, options *Options) (*Loader, error) {
	if client == nil {
		return nil, ErrNilClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	options = withDefaults(options)

	bus, err := events.NewTypedEventBus[LoadEvent](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("could not initialize event bus: %w", err)
	}

	return &Loader{
		client:        client,
		compiler:      query.NewCompiler(logger),
		options:       options,
		logger:        logger,
		subscriptions: make(map[string]*SubscriptionInfo),
		bus:           bus,
	}, nil
}

func withDefaults(options *Options) *Options {
	defaults := DefaultOptions()
	if options == nil {
		return defaults
	}
	merged := *options
	if merged.Count == "" {
		merged.Count = defaults.Count
	}
	if merged.Join == "" {
		merged.Join = defaults.Join
	}
	if merged.PageSize <= 0 {
		merged.PageSize = defaults.PageSize
	}
	return &merged
}

// applyDefaults fills in the count mode and join type a descriptor left empty.
func (l *Loader) applyDefaults(props query.Props) query.Props {
	if props.Count == "" {
		props.Count = l.options.Count
	}
	if props.Join == "" {
		props.Join = l.options.Join
	}
	return props
}

// Compile validates props and returns the plan Load would execute.
func (l *Loader) Compile(props query.Props) (*query.Plan, error) {
	props = l.applyDefaults(props)
	if err := Validate(props, l.options); err != nil {
		return nil, err
	}
	return l.compiler.Compile(props)
}

// Validate checks props the way a loader with options does before compiling.
func Validate(props query.Props, options *Options) error {
	if options == nil {
		options = DefaultOptions()
	}
	if options.SkipValidation {
		return nil
	}
	result := props.Validate()
	if options.Strict {
		result = props.ValidateStrict()
	}
	if err := result.Err(); err != nil {
		return fmt.Errorf("invalid descriptor: %w", err)
	}
	return nil
}

// Load runs props against the engine.
//
// Problems with the descriptor itself are returned as an error before the
// engine is called. Engine failures are reported in QueryResult.Error and the
// returned error is nil.
func (l *Loader) Load(ctx context.Context, props query.Props) (*query.QueryResult, error) {
	props = l.applyDefaults(props)

	return l.withEventEmission("load", props, func() (*query.Plan, *query.QueryResult, error) {
		plan, err := l.Compile(props)
		if err != nil {
			return nil, nil, err
		}

		resp := plan.Execute(ctx, l.client)
		result := query.Shape(resp, props.Single, props.CamelCase)
		if !props.Single {
			result.Pagination = Paginate(props.Page, props.Limit, l.options.PageSize, result.Count)
		}

		if result.Error != nil {
			l.logger.Debug("Engine returned an error",
				zap.String("table", props.Table),
				zap.String("select", plan.Select),
				zap.Error(result.Error),
			)
		} else {
			l.logger.Debug("Loaded rows",
				zap.String("table", props.Table),
				zap.Int64("count", result.Count),
			)
		}
		return plan, result, nil
	})
}

// Paginate computes pagination metadata: the page defaults to 1 and the page
// size to the descriptor's limit, or pageSize when there is none.
func Paginate(page, limit *int, pageSize int, total int64) *query.PaginationResult {
	p := 1
	if page != nil {
		p = *page
	}
	size := pageSize
	if limit != nil {
		size = *limit
	}

	pageCount := 0
	if size > 0 {
		pageCount = int((total + int64(size) - 1) / int64(size))
	}

	return &query.PaginationResult{
		Page:      p,
		PageSize:  size,
		PageCount: pageCount,
		Total:     total,
	}
}

// LoadInto runs props and decodes the result data into T, which should be a
// struct (or pointer) for single-row descriptors and a slice otherwise.
func LoadInto[T any](ctx context.Context, l *Loader, props query.Props) (T, *query.QueryResult, error) {
	var zero T
	result, err := l.Load(ctx, props)
	if err != nil {
		return zero, nil, err
	}
	if result.Error != nil || result.Data == nil {
		return zero, result, nil
	}
	out, err := utils.Decode[T](result.Data)
	if err != nil {
		return zero, result, fmt.Errorf("failed to decode %s rows: %w", props.Table, err)
	}
	return out, result, nil
}

// RegisterSubscription registers a callback for a load event. It returns a
// unique ID that can be used to unregister the subscription later.
func (l *Loader) RegisterSubscription(options RegisterSubscriptionOptions) string {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	unsubscribe := l.bus.Subscribe(string(options.Event), options.Callback)
	id := uuid.New().String()

	l.subscriptions[id] = &SubscriptionInfo{
		Id:          &id,
		Event:       options.Event,
		Label:       options.Label,
		Description: options.Description,
		Unsubscribe: unsubscribe,
	}
	l.logger.Info("Registered subscription", zap.String("id", id), zap.String("event", string(options.Event)))
	return id
}

// UnregisterSubscription removes a subscription by its ID.
func (l *Loader) UnregisterSubscription(id string) {
	l.subMu.Lock()
	defer l.subMu.Unlock()

	if info, ok := l.subscriptions[id]; ok {
		info.Unsubscribe()
		delete(l.subscriptions, id)
	}
}

// Subscriptions returns a list of all currently active subscriptions.
func (l *Loader) Subscriptions() []SubscriptionInfo {
	l.subMu.RLock()
	defer l.subMu.RUnlock()

	subs := make([]SubscriptionInfo, 0, len(l.subscriptions))
	for _, sub := range l.subscriptions {
		subs = append(subs, *sub)
	}
	return subs
}
