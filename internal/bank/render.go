package bank

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
)

func writeRow(w *tabwriter.Writer, columns ...string) {
	fmt.Fprintln(w, strings.Join(columns, "\t"))
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
