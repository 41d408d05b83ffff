package commands

import (
	"fmt"
	"strings"

	"github.com/asaidimu/go-dataloader/core/query"
	"github.com/asaidimu/go-dataloader/internal/config"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

// descriptorFlags are the flags that build a query.Props.
type descriptorFlags struct {
	descriptor string
	table      string
	columns    string
	where      string
	sort       string
	page       int
	limit      int
	count      string
	single     bool
	leftJoin   bool
	camelCase  bool
}

func (f *descriptorFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.descriptor, "descriptor", "d", "", "JSON descriptor, or @path to a file holding one")
	flags.StringVarP(&f.table, "table", "t", "", "table to load from")
	flags.StringVarP(&f.columns, "select", "s", "", `columns, comma separated ("user_id.name" selects a related column), or a raw select string`)
	flags.StringVarP(&f.where, "where", "w", "", `filter as JSON, e.g. {"status":{"eq":"open"}}`)
	flags.StringVar(&f.sort, "sort", "", "sort order, e.g. name:asc,created_at:desc")
	flags.IntVar(&f.page, "page", 1, "page number, starting at 1")
	flags.IntVar(&f.limit, "limit", 0, "rows per page")
	flags.StringVar(&f.count, "count", "", "count mode: exact, planned or estimated")
	flags.BoolVar(&f.single, "single", false, "return a single row or null")
	flags.BoolVar(&f.leftJoin, "left-join", false, "keep rows whose related row does not match")
	flags.BoolVar(&f.camelCase, "camel-case", false, "convert result keys to camelCase")
}

// props builds the descriptor. A --descriptor is decoded first; flags set
// explicitly on the command line override its fields.
func (f *descriptorFlags) props(cmd *cobra.Command) (query.Props, error) {
	var props query.Props
	if f.descriptor != "" {
		data, err := readArgument(f.descriptor)
		if err != nil {
			return query.Props{}, err
		}
		if props, err = query.DecodeProps(data); err != nil {
			return query.Props{}, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("table") {
		props.Table = f.table
	}
	if changed("select") {
		props.Select = parseSelection(f.columns)
	}
	if changed("where") {
		filter, err := query.DecodeFilter([]byte(f.where))
		if err != nil {
			return query.Props{}, err
		}
		props.Where = filter
	}
	if changed("sort") {
		sort, err := parseSort(f.sort)
		if err != nil {
			return query.Props{}, err
		}
		props.Sort = sort
	}
	if changed("page") {
		page := f.page
		props.Page = &page
	}
	if changed("limit") {
		limit := f.limit
		props.Limit = &limit
	}
	if changed("count") {
		props.Count = query.CountType(f.count)
	}
	if changed("single") {
		props.Single = f.single
	}
	if changed("left-join") {
		props.Join = query.JoinTypeInner
		if f.leftJoin {
			props.Join = query.JoinTypeLeft
		}
	}
	if changed("camel-case") {
		props.CamelCase = f.camelCase
	}

	if props.Table == "" {
		return query.Props{}, fmt.Errorf("--table or a descriptor with a table is required")
	}
	return props, nil
}

// readArgument returns s, or the contents of the file it names when it
// starts with "@".
func readArgument(s string) ([]byte, error) {
	path, isFile := strings.CutPrefix(s, "@")
	if !isFile {
		return []byte(s), nil
	}
	data, err := afero.ReadFile(config.AppFs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// parseSelection treats "" and "*" as every column, anything with an embed
// as a raw select string, and the rest as a column list.
func parseSelection(s string) query.Selection {
	s = strings.TrimSpace(s)
	switch {
	case s == "" || s == "*":
		return query.All()
	case strings.ContainsAny(s, "()!"):
		return query.Raw(s)
	}
	parts := strings.Split(s, ",")
	cols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			cols = append(cols, p)
		}
	}
	return query.Columns(cols...)
}

// parseSort parses "field[:asc|desc],..."; the direction defaults to asc.
func parseSort(s string) ([]query.SortConfiguration, error) {
	var sort []query.SortConfiguration
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, dir, _ := strings.Cut(part, ":")
		direction := query.SortDirectionAsc
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			direction = query.SortDirectionDesc
		default:
			return nil, fmt.Errorf("invalid sort direction %q for %s", dir, field)
		}
		sort = append(sort, query.SortConfiguration{Field: field, Direction: direction})
	}
	return sort, nil
}
