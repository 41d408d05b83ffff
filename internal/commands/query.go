package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/asaidimu/go-dataloader/core/loader"
	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/core/schema"
	"github.com/asaidimu/go-dataloader/internal/ui"
	"github.com/asaidimu/go-dataloader/postgrest"
	"github.com/asaidimu/go-dataloader/sqlengine"
	"github.com/asaidimu/go-dataloader/supabase"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	enginePostgREST = "postgrest"
	engineSQLite    = "sqlite"
	enginePostgres  = "postgres"
)

type queryFlags struct {
	engine string
	dsn    string
	tables string
	create bool
}

// output is the JSON printed for a load.
type output struct {
	Data       any                     `json:"data"`
	Count      int64                   `json:"count"`
	Pagination *query.PaginationResult `json:"pagination,omitempty"`
	Error      *string                 `json:"error,omitempty"`
}

func newQueryCommand(a *app) *cobra.Command {
	flags := &descriptorFlags{}
	qf := &queryFlags{}

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a descriptor and print the result as JSON",
		Long: `Run a descriptor and print the shaped result.

The postgrest engine sends the query to the configured Supabase project. The
sqlite and postgres engines run it directly on a database; they need the table
definitions (--tables) to resolve columns and related tables.`,
		Example: `  dataloader query -t tasks -s id,title --sort title:asc --limit 5
  dataloader query --engine sqlite --dsn app.db --tables @tables.json -t tasks -s 'id,user_id!inner(name)'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := flags.props(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			client, closeFn, err := a.client(ctx, qf)
			if err != nil {
				return err
			}
			defer closeFn()

			l, err := loader.NewLoader(client, a.logger, &a.cfg.Loader)
			if err != nil {
				return err
			}
			l.RegisterSubscription(loader.RegisterSubscriptionOptions{
				Event: loader.LoadSuccess,
				Callback: func(ctx context.Context, event loader.LoadEvent) error {
					if event.Duration != nil {
						a.logger.Info("Load finished", zap.String("table", event.Table), zap.Int64("durationMs", *event.Duration))
					}
					return nil
				},
			})

			result, err := l.Load(ctx, props)
			if err != nil {
				return err
			}

			out := output{Data: result.Data, Count: result.Count, Pagination: result.Pagination}
			if result.Error != nil {
				msg := result.Error.Error()
				out.Error = &msg
				ui.PrintWarning(cmd.ErrOrStderr(), "query failed: %s", msg)
			}
			return ui.PrintJSON(cmd.OutOrStdout(), out)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVar(&qf.engine, "engine", enginePostgREST, "engine to run on: postgrest, sqlite or postgres")
	cmd.Flags().StringVar(&qf.dsn, "dsn", "", "database connection string for the sqlite and postgres engines")
	cmd.Flags().StringVar(&qf.tables, "tables", "", "table definitions as JSON, or @path to a file holding them")
	cmd.Flags().BoolVar(&qf.create, "create-tables", false, "create missing tables before querying")
	return cmd
}

// client opens the engine selected by qf. The returned function releases it.
func (a *app) client(ctx context.Context, qf *queryFlags) (query.Client, func(), error) {
	noop := func() {}

	switch qf.engine {
	case enginePostgREST, "":
		client, err := supabase.NewClient(a.cfg.Supabase, a.logger)
		if err != nil {
			return nil, noop, err
		}
		engine, err := postgrest.NewClient(client, a.logger)
		return engine, noop, err

	case engineSQLite, enginePostgres:
		if qf.dsn == "" {
			return nil, noop, fmt.Errorf("--dsn is required for the %s engine", qf.engine)
		}
		defs, err := readTables(qf.tables)
		if err != nil {
			return nil, noop, err
		}

		open := sqlengine.OpenSQLite
		if qf.engine == enginePostgres {
			open = sqlengine.OpenPostgres
		}
		engine, err := open(ctx, qf.dsn, a.logger, nil)
		if err != nil {
			return nil, noop, err
		}
		closeFn := func() {
			if err := engine.Close(); err != nil {
				a.logger.Warn("Failed to close database", zap.Error(err))
			}
		}
		if err := engine.Register(defs...); err != nil {
			closeFn()
			return nil, noop, err
		}
		if qf.create {
			if err := engine.CreateTables(ctx); err != nil {
				closeFn()
				return nil, noop, err
			}
		}
		return engine, closeFn, nil

	default:
		return nil, noop, fmt.Errorf("unknown engine %q", qf.engine)
	}
}

// readTables decodes a table definition or a list of them.
func readTables(arg string) ([]*schema.TableDefinition, error) {
	if arg == "" {
		return nil, fmt.Errorf("--tables is required for the sql engines")
	}
	data, err := readArgument(arg)
	if err != nil {
		return nil, err
	}

	var raw []json.RawMessage
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("failed to decode table definitions: %w", err)
		}
	} else {
		raw = []json.RawMessage{data}
	}

	defs := make([]*schema.TableDefinition, 0, len(raw))
	for _, r := range raw {
		def, err := schema.Parse(r)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, nil
}
