package cleanup

import (
	"io"
	"os"

	"github.com/fatih/color"
)

// Reporter prints a one-line colored summary of each cleanup pass for
// operators running the server in a terminal.
type Reporter struct {
	out     io.Writer
	header  *color.Color
	value   *color.Color
	dimmed  *color.Color
	warning *color.Color
}

// NewReporter writes to out, or stdout when out is nil.
func NewReporter(out io.Writer) *Reporter {
	if out == nil {
		out = os.Stdout
	}
	return &Reporter{
		out:     out,
		header:  color.New(color.FgCyan, color.Bold),
		value:   color.New(color.FgHiWhite),
		dimmed:  color.New(color.FgHiBlack),
		warning: color.New(color.FgYellow),
	}
}

// Report prints the summary of one pass.
func (r *Reporter) Report(res Result) {
	r.header.Fprint(r.out, "cleanup ")
	r.dimmed.Fprint(r.out, "visitors=")
	r.count(res.Evicted > 0).Fprintf(r.out, "%d ", res.Evicted)
	r.dimmed.Fprint(r.out, "tokens=")
	r.count(res.ExpiredTokens > 0).Fprintf(r.out, "%d ", res.ExpiredTokens)
	r.dimmed.Fprint(r.out, "state=")
	r.count(res.StaleState > 0).Fprintf(r.out, "%d ", res.StaleState)
	r.dimmed.Fprintf(r.out, "(%s)\n", res.Duration)
}

func (r *Reporter) count(nonZero bool) *color.Color {
	if nonZero {
		return r.warning
	}
	return r.value
}
