package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/hatlonely/tablex/workset"
	"github.com/spf13/cobra"
)

func newTablesCmd(flags *rootFlags) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a connection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				if err := a.load(cmd.Context(), flags.connection, ""); err != nil {
					return err
				}
				tables := a.engine.Tables()
				if output == outputJSON {
					return writeJSON(cmd.OutOrStdout(), tables)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "NAME\tKIND\tROWS\tCOLUMNS\tPRIMARY KEY")
				for _, t := range tables {
					fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n", t.Name, t.Kind, t.RowCount, len(t.Columns), primaryKey(t.Columns))
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "output format: table or json")
	return cmd
}

func primaryKey(columns []workset.Column) string {
	name := "-"
	for _, c := range columns {
		if c.PrimaryKey {
			if name == "-" {
				name = c.Name
			} else {
				name += "," + c.Name
			}
		}
	}
	return name
}
