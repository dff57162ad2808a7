package main

import (
	"github.com/spf13/cobra"
)

// rootFlags 所有子命令共用的参数
type rootFlags struct {
	config     string
	connection string
	table      string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:   "tablex",
		Short: "Browse and edit database tables from the command line",
		Long: `tablex loads every table of a connection into an in-memory working set,
then lists, searches, exports, imports and bulk edits records. Writes are
persisted to the connection before they are applied locally.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "config file (yaml, json, toml or ini)")
	root.PersistentFlags().StringVar(&flags.connection, "connection", "local", "connection id")
	root.PersistentFlags().StringVarP(&flags.table, "table", "t", "", "table name, defaults to the first table")

	root.AddCommand(
		newTablesCmd(flags),
		newRecordsCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
		newUpdateCmd(flags),
		newDeleteCmd(flags),
		newServeCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

// withApp 创建 app 并在命令结束后关闭
func withApp(flags *rootFlags, fn func(a *app) error) error {
	a, err := newApp(flags.config)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
