package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/hatlonely/tablex/kv/serializer"
	"github.com/hatlonely/tablex/workset"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func writeJSON(w io.Writer, v any) error {
	data, err := serializer.NewIndentJSONSerializer[any]("  ").Serialize(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// columnNames 列定义为空时使用记录中出现过的字段，按字典序
func columnNames(columns []workset.Column, records []workset.Record) []string {
	if len(columns) > 0 {
		names := make([]string, len(columns))
		for i, c := range columns {
			names[i] = c.Name
		}
		return names
	}
	seen := map[string]struct{}{}
	var names []string
	for _, r := range records {
		for k := range r {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				names = append(names, k)
			}
		}
	}
	sort.Strings(names)
	return names
}

func writeRecords(out io.Writer, names []string, records []workset.Record, format func(workset.Record, string) string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t")))
	for _, r := range records {
		cells := make([]string, len(names))
		for i, name := range names {
			cells[i] = format(r, name)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t"))
	}
	return w.Flush()
}
