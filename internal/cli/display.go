package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/mx-space/journal/internal/models"
	"github.com/mx-space/journal/internal/modules/entrysummary"
)

var (
	bold   = color.New(color.Bold).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

func printTable(w io.Writer, header []interface{}, rows [][]interface{}) {
	tbl := uitable.New()
	tbl.Separator = "  "
	tbl.MaxColWidth = 60
	tbl.Wrap = true
	tbl.AddRow(boldAll(header)...)
	for _, row := range rows {
		tbl.AddRow(row...)
	}
	_, _ = fmt.Fprintln(w, tbl)
}

func boldAll(cells []interface{}) []interface{} {
	out := make([]interface{}, len(cells))
	for i, c := range cells {
		out[i] = bold(c)
	}
	return out
}

func stateLabel(s entrysummary.State) string {
	switch s {
	case entrysummary.StateSummarized:
		return green(string(s))
	case entrysummary.StateHeld:
		return red(string(s))
	case entrysummary.StateGenerating:
		return yellow(string(s))
	}
	return faint(string(s))
}

func reasonLabel(r models.HoldReason) string {
	switch r {
	case models.HoldRateLimit, models.HoldTimeout:
		return yellow(string(r))
	case models.HoldUnknown:
		return faint(string(r))
	}
	return red(string(r))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}
