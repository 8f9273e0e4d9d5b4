package visualization

import (
	"fmt"
	"io"
)

// List is a model for labelled line data.
type List struct {
	elements []string
	label    string
}

// NewList creates new model of data representation.
func NewList(elements []string, label string) *List {
	return &List{
		elements,
		label,
	}
}

// Draw prints the elements from the list, one per line, each prefixed with
// the list label.
func (l *List) Draw(output io.Writer) {
	for _, value := range l.elements {
		fmt.Fprintln(output, l.label+value)
	}
}
