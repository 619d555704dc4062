package detection

import (
	"fmt"
	"io"
	"strconv"

	"github.com/nao1215/markdown"
)

// Outcome pairs a submitted URL with its verdict or the error that stopped it.
type Outcome struct {
	Input   string
	Verdict Verdict
	Err     error
}

// WriteText writes one line per outcome.
func WriteText(w io.Writer, outcomes []Outcome) error {
	for _, o := range outcomes {
		var err error
		switch {
		case o.Err != nil:
			_, err = fmt.Fprintf(w, "%s\terror: %v\n", o.Input, o.Err)
		case o.Verdict.Overridden():
			_, err = fmt.Fprintf(w, "%s\t%s\t%.2f%%\t%s\t%s\n", o.Verdict.URL, o.Verdict.Label,
				o.Verdict.Confidence, o.Verdict.ThreatLevel, o.Verdict.OverrideReason)
		default:
			_, err = fmt.Fprintf(w, "%s\t%s\t%.2f%%\t%s\n", o.Verdict.URL, o.Verdict.Label,
				o.Verdict.Confidence, o.Verdict.ThreatLevel)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// WriteMarkdown writes the outcomes as a markdown table.
func WriteMarkdown(w io.Writer, outcomes []Outcome) error {
	md := markdown.NewMarkdown(w)
	md.H1("Phishing Check Report")
	md.PlainText("")

	rows := make([][]string, 0, len(outcomes))
	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
			rows = append(rows, []string{"`" + o.Input + "`", "error", "-", "-", o.Err.Error()})
			continue
		}
		rows = append(rows, []string{
			"`" + o.Verdict.URL + "`",
			o.Verdict.Label.String(),
			strconv.FormatFloat(o.Verdict.Confidence, 'f', 2, 64),
			string(o.Verdict.ThreatLevel),
			o.Verdict.OverrideReason,
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"URL", "Prediction", "Confidence", "Threat Level", "Reason"},
		Rows:   rows,
	})
	md.PlainText("")
	md.PlainText(fmt.Sprintf("Checked %d URL(s), %d failed.", len(outcomes), failed))
	return md.Build()
}
