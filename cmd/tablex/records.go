package main

import (
	"context"
	"fmt"

	"github.com/hatlonely/tablex/workset"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type recordsFlags struct {
	search string
	page   int
	remote bool
	output string
}

func newRecordsCmd(flags *rootFlags) *cobra.Command {
	rf := &recordsFlags{}
	cmd := &cobra.Command{
		Use:   "records",
		Short: "Show one page of records of a table",
		Long: `Show one page of records. By default the search runs over the loaded
working set; with --remote it is pushed down to the connection.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				if rf.remote {
					return remoteRecords(cmd, a, flags, rf)
				}
				return localRecords(cmd, a, flags, rf)
			})
		},
	}
	cmd.Flags().StringVarP(&rf.search, "search", "s", "", "case-insensitive search term")
	cmd.Flags().IntVarP(&rf.page, "page", "p", 1, "page number, starting at 1")
	cmd.Flags().BoolVar(&rf.remote, "remote", false, "search on the connection instead of the working set")
	cmd.Flags().StringVarP(&rf.output, "output", "o", outputTable, "output format: table or json")
	return cmd
}

func localRecords(cmd *cobra.Command, a *app, flags *rootFlags, rf *recordsFlags) error {
	if err := a.load(cmd.Context(), flags.connection, flags.table); err != nil {
		return err
	}
	a.engine.SetSearch(rf.search)
	a.engine.SetPage(rf.page)
	a.engine.ClampPage()

	page, err := a.engine.VisiblePage()
	if err != nil {
		return err
	}
	if rf.output == outputJSON {
		return writeJSON(cmd.OutOrStdout(), page)
	}

	t, err := a.engine.Table(a.engine.ActiveTable())
	if err != nil {
		return err
	}
	if err := writeRecords(cmd.OutOrStdout(), columnNames(t.Columns, page.Records), page.Records, a.engine.FormatCell); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "\n%s: page %d of %d, %d records\n", t.Name, page.Page, page.TotalPages, page.Total)
	return err
}

func remoteRecords(cmd *cobra.Command, a *app, flags *rootFlags, rf *recordsFlags) error {
	info, err := remoteTable(cmd.Context(), a, flags.connection, flags.table)
	if err != nil {
		return err
	}
	if rf.page < 1 {
		rf.page = 1
	}
	pageSize := a.config.Engine.PageSize
	records, err := a.manager.SearchRecords(cmd.Context(), flags.connection, info.Name, rf.search, (rf.page-1)*pageSize, pageSize)
	if err != nil {
		return err
	}
	if rf.output == outputJSON {
		if records == nil {
			records = []workset.Record{}
		}
		return writeJSON(cmd.OutOrStdout(), records)
	}

	columns := map[string]workset.Column{}
	for _, c := range info.Columns {
		columns[c.Name] = c
	}
	formatter := a.engine.Formatter()
	format := func(r workset.Record, name string) string {
		column, ok := columns[name]
		if !ok {
			column = workset.Column{Name: name}
		}
		return formatter.Format(r[name], column)
	}
	if err := writeRecords(cmd.OutOrStdout(), columnNames(info.Columns, records), records, format); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "\n%s: page %d, %d records\n", info.Name, rf.page, len(records))
	return err
}

// remoteTable 查找表结构，name 为空时取第一张表
func remoteTable(ctx context.Context, a *app, connection string, name string) (workset.TableInfo, error) {
	tables, err := a.manager.ListTables(ctx, connection)
	if err != nil {
		return workset.TableInfo{}, err
	}
	for _, t := range tables {
		if name == "" || t.Name == name {
			return t, nil
		}
	}
	if name == "" {
		return workset.TableInfo{}, errors.WithMessagef(workset.ErrTableNotFound, "connection %s has no tables", connection)
	}
	return workset.TableInfo{}, errors.WithMessagef(workset.ErrTableNotFound, "table %s", name)
}
