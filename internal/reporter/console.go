package reporter

import (
	"fmt"
	"io"
)

// Console rewrites a single terminal line with the latest estimate.
type Console struct {
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) Report(rate float64) error {
	_, err := fmt.Fprintf(c.out, "\r\033[KEMG Rate: %.6g", rate)
	return err
}
