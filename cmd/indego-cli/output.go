package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
)

var mowerHeader = []string{"NAME", "MODEL", "SERIAL", "STATE", "STATUS", "AUTH"}

// printer renders a response either verbatim as JSON or as mower rows.
type printer struct {
	out  io.Writer
	json bool
}

func newPrinter(jsonOut bool) printer {
	return printer{out: os.Stdout, json: jsonOut}
}

func (p printer) render(raw map[string]any, rows [][]string) error {
	if p.json {
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(raw)
	}

	w := tabwriter.NewWriter(p.out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, strings.Join(mowerHeader, "\t"))
	for _, row := range rows {
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if msg := stringValue(raw["error"]); msg != "" {
		fmt.Fprintf(w, "error: %s\n", msg)
	}
	return w.Flush()
}
