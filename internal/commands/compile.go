package commands

import (
	"fmt"

	"github.com/asaidimu/go-dataloader/core/loader"
	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/internal/ui"
	"github.com/spf13/cobra"
)

func newCompileCommand(a *app) *cobra.Command {
	flags := &descriptorFlags{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the query calls a descriptor compiles to",
		Long: `Compile a descriptor without running it. The select string is printed first,
followed by the filter, sort and pagination calls in the order they would be
applied.`,
		Example: `  dataloader compile -t tasks -s id,title,user_id.name -w '{"status":{"eq":"open"}}' --sort title:asc --page 2 --limit 10`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			props, err := flags.props(cmd)
			if err != nil {
				return err
			}
			plan, err := a.compile(props)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			ui.PrintHeading(out, fmt.Sprintf("from(%s)", plan.Table))
			ui.PrintStep(out, 0, fmt.Sprintf("select(%s, count=%s)", plan.Select, plan.Count))
			for i, step := range plan.Steps {
				ui.PrintStep(out, i+1, step.String())
			}
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

// compile applies the configured defaults, validates props and compiles it.
func (a *app) compile(props query.Props) (*query.Plan, error) {
	if props.Count == "" {
		props.Count = a.cfg.Loader.Count
	}
	if props.Join == "" {
		props.Join = a.cfg.Loader.Join
	}
	if err := loader.Validate(props, &a.cfg.Loader); err != nil {
		return nil, err
	}
	return query.NewCompiler(a.logger).Compile(props)
}
