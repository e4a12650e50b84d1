package connect

import (
	"errors"
	"fmt"
	"strings"

	"github.com/stk-tools/stkctl/internal/connect/wire"
)

var ErrReportOptions = errors.New("connect: invalid report options")

// ReportOptions names the clauses of a report command. ObjPath and Style are
// mandatory; every other clause is appended only when set, in the fixed
// order the remote parser is known to accept: AccessObject, TimePeriod,
// TimeStep, AdditionalData, Summary, AllLines.
type ReportOptions struct {
	// ObjPath is the object path relative to the scenario, e.g.
	// "Satellite/ERS1".
	ObjPath string

	// Style is a built-in report style name or the path to a style file.
	Style string

	// Type selects the report destination handling (Save, Print, Display,
	// Export) for file-bound reports.
	Type string

	// File is the destination path for file-bound reports.
	File string

	AccessObject   string
	TimePeriod     string
	TimeStep       string
	AdditionalData string
	Summary        string
	AllLines       string
}

func (o ReportOptions) validate() error {
	if strings.TrimSpace(o.ObjPath) == "" {
		return fmt.Errorf("%w: ObjPath required", ErrReportOptions)
	}
	if strings.TrimSpace(o.Style) == "" {
		return fmt.Errorf("%w: Style required", ErrReportOptions)
	}
	return nil
}

// buildReportCommand renders one report command line. Style, AdditionalData
// and File values are quoted; the clause order must not be changed, since
// the remote parser's tolerance for reordering is undocumented.
func buildReportCommand(verb string, o ReportOptions) (string, error) {
	if err := o.validate(); err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s */%s", verb, o.ObjPath)
	if o.Type != "" {
		fmt.Fprintf(&b, " Type %s", o.Type)
	}
	fmt.Fprintf(&b, ` Style "%s"`, o.Style)
	if o.File != "" {
		// Literal quoting, not %q: Windows-style paths must pass through
		// with their backslashes intact.
		fmt.Fprintf(&b, ` File "%s"`, o.File)
	}
	if o.AccessObject != "" {
		fmt.Fprintf(&b, " AccessObject %s", o.AccessObject)
	}
	if o.TimePeriod != "" {
		fmt.Fprintf(&b, " TimePeriod %s", o.TimePeriod)
	}
	if o.TimeStep != "" {
		fmt.Fprintf(&b, " TimeStep %s", o.TimeStep)
	}
	if o.AdditionalData != "" {
		fmt.Fprintf(&b, ` AdditionalData "%s"`, o.AdditionalData)
	}
	if o.Summary != "" {
		fmt.Fprintf(&b, " Summary %s", o.Summary)
	}
	if o.AllLines != "" {
		fmt.Fprintf(&b, " AllLines %s", o.AllLines)
	}
	return b.String(), nil
}

// Report sends a ReportCreate command. Nothing is read back beyond the
// acknowledgement; the report lands wherever Type/File direct it.
func (b *base) Report(opts ReportOptions) error {
	command, err := buildReportCommand("ReportCreate", opts)
	if err != nil {
		return err
	}
	return b.Send(command)
}

// ReportReturning sends a Report_RM command and collects whatever arrives
// before the idle timeout, split into rows.
//
// An empty result is ambiguous: the report may legitimately be empty, or no
// data may have arrived within the idle window. The protocol offers no way
// to distinguish the two, so neither does this method.
func (b *base) ReportReturning(opts ReportOptions) ([]string, error) {
	command, err := buildReportCommand("Report_RM", opts)
	if err != nil {
		return nil, err
	}
	if err := b.Send(command); err != nil {
		return nil, err
	}
	buf, err := b.conn.ReadUntilIdle(b.cfg.ReadIdleTimeout)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, nil
	}
	rows := wire.SplitReportBuffer(buf, wire.ReportMarker)
	b.log.Debug().Int("rows", len(rows)).Msg("returning report decoded")
	return rows, nil
}
