// Package visualization builds table and list models of analysis outputs and
// renders them for external reporting collaborators. It does no computation.
package visualization

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// Table is a model for tabular data.
type Table struct {
	headers []string
	data    [][]string
}

// NewTable creates new model of data representation.
func NewTable(headers []string, data [][]string) *Table {
	return &Table{
		headers,
		data,
	}
}

// Draw renders the table with headers and data rows to the given writer.
func (t *Table) Draw(output io.Writer) {
	writer := tablewriter.NewWriter(output)
	writer.SetHeader(t.headers)
	for _, row := range t.data {
		writer.Append(row)
	}
	writer.Render()
}
