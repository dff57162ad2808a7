package main

import (
	"fmt"
	"io"
	"os"

	"github.com/hatlonely/tablex/workset"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// selectKeys 选中指定记录，all 为 true 时选中当前表的全部记录
func selectKeys(a *app, keys []string, all bool) error {
	if all {
		t, err := a.engine.Table(a.engine.ActiveTable())
		if err != nil {
			return err
		}
		keys = t.Keys()
	}
	for _, key := range keys {
		if _, err := a.engine.ToggleSelection(key); err != nil {
			return err
		}
	}
	return nil
}

// runTask 输出任务进度并等待结束
func runTask(cmd *cobra.Command, task *workset.Task) (*workset.BulkResult, error) {
	out := cmd.ErrOrStderr()
	for percent := range task.Progress() {
		fmt.Fprintf(out, "%s %s: %d%%\n", task.Kind, task.Table, percent)
	}
	return task.Wait(cmd.Context())
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s failed", path)
	}
	return data, nil
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	var (
		keys   []string
		all    bool
		format string
		out    string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export selected records of a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				if err := a.load(cmd.Context(), flags.connection, flags.table); err != nil {
					return err
				}
				if err := selectKeys(a, keys, all); err != nil {
					return err
				}
				artifact, err := a.engine.Export(format)
				if err != nil {
					return err
				}
				if out == "-" {
					_, err := cmd.OutOrStdout().Write(artifact.Data)
					return err
				}
				if out == "" {
					out = artifact.Name
				}
				if err := os.WriteFile(out, artifact.Data, 0644); err != nil {
					return errors.Wrapf(err, "write %s failed", out)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "exported %d records to %s\n", len(a.engine.Selection()), out)
				return err
			})
		},
	}
	cmd.Flags().StringSliceVarP(&keys, "keys", "k", nil, "record keys to export")
	cmd.Flags().BoolVar(&all, "all", false, "export every record of the table")
	cmd.Flags().StringVarP(&format, "format", "f", "", "json, msgpack, bson or protobuf")
	cmd.Flags().StringVar(&out, "out", "", "output file, - for stdout, defaults to <table>_export_<date>")
	return cmd
}

func newImportCmd(flags *rootFlags) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON array of records into a table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, file)
			if err != nil {
				return err
			}
			return withApp(flags, func(a *app) error {
				if err := a.load(cmd.Context(), flags.connection, flags.table); err != nil {
					return err
				}
				task, err := a.engine.Import(cmd.Context(), data)
				if err != nil {
					return err
				}
				result, err := runTask(cmd, task)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %d records into %s\n", result.Affected, result.Table)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "JSON file to import, - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newUpdateCmd(flags *rootFlags) *cobra.Command {
	var (
		keys  []string
		all   bool
		patch string
	)
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Apply a JSON patch to selected records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				if err := a.load(cmd.Context(), flags.connection, flags.table); err != nil {
					return err
				}
				if err := selectKeys(a, keys, all); err != nil {
					return err
				}
				task, err := a.engine.BulkUpdate(cmd.Context(), []byte(patch))
				if err != nil {
					return err
				}
				result, err := runTask(cmd, task)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "updated %d records in %s\n", result.Affected, result.Table)
				return err
			})
		},
	}
	cmd.Flags().StringSliceVarP(&keys, "keys", "k", nil, "record keys to update")
	cmd.Flags().BoolVar(&all, "all", false, "update every record of the table")
	cmd.Flags().StringVar(&patch, "patch", "", `JSON object, for example {"name":"x"}`)
	_ = cmd.MarkFlagRequired("patch")
	return cmd
}

func newDeleteCmd(flags *rootFlags) *cobra.Command {
	var (
		keys []string
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete selected records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(a *app) error {
				if err := a.load(cmd.Context(), flags.connection, flags.table); err != nil {
					return err
				}
				if err := selectKeys(a, keys, all); err != nil {
					return err
				}
				task, err := a.engine.BulkDelete(cmd.Context())
				if err != nil {
					return err
				}
				result, err := runTask(cmd, task)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d records from %s\n", result.Affected, result.Table)
				return err
			})
		},
	}
	cmd.Flags().StringSliceVarP(&keys, "keys", "k", nil, "record keys to delete")
	cmd.Flags().BoolVar(&all, "all", false, "delete every record of the table")
	return cmd
}
