package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/example/live-sessions/internal/mediarepair"
	"github.com/example/live-sessions/pkg/apiclient"
)

type formatter struct {
	w io.Writer
}

func newFormatter(w io.Writer) *formatter {
	return &formatter{w: w}
}

func (f *formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *formatter) Check(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}

func (f *formatter) RepairReport(report mediarepair.Report) {
	fmt.Fprintf(f.w, "File:    %s\n", report.Path)
	fmt.Fprintf(f.w, "Outcome: %s\n", report.Outcome)
	if report.BackupPath != "" {
		fmt.Fprintf(f.w, "Backup:  %s\n", report.BackupPath)
	}
	if report.Note != "" {
		fmt.Fprintf(f.w, "Note:    %s\n", report.Note)
	}
	for _, attempt := range report.Attempts {
		line := fmt.Sprintf("  - %s: %s", attempt.Strategy, attempt.Result)
		if attempt.Detail != "" {
			line += " (" + attempt.Detail + ")"
		}
		if attempt.Err != nil {
			line += ": " + attempt.Err.Error()
		}
		fmt.Fprintln(f.w, line)
	}
}

func (f *formatter) Sessions(sessions []apiclient.Session) {
	if len(sessions) == 0 {
		f.Info("No sessions found")
		return
	}
	tw := tabwriter.NewWriter(f.w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTART\tMINUTES\tTYPE\tTITLE")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			s.ID, s.DisplayStatus, s.StartTime.Local().Format(time.DateTime), s.DurationMinutes, s.SessionType, s.Title)
	}
	_ = tw.Flush()
}

func (f *formatter) Session(s apiclient.Session) {
	fmt.Fprintf(f.w, "%s  %s\n", s.ID, s.Title)
	fmt.Fprintf(f.w, "  status:  %s (%s)\n", s.DisplayStatus, s.Status)
	fmt.Fprintf(f.w, "  window:  %s - %s\n", s.StartTime.Local().Format(time.DateTime), s.EndTime.Local().Format(time.DateTime))
	if s.JoinURL != "" {
		fmt.Fprintf(f.w, "  join:    %s\n", s.JoinURL)
	}
}

func (f *formatter) Join(j apiclient.Join) {
	fmt.Fprintf(f.w, "Join URL: %s\n", j.JoinURL)
	if j.Password != "" {
		fmt.Fprintf(f.w, "Password: %s\n", j.Password)
	}
	if j.AttendanceRecorded {
		f.Success("Attendance recorded")
	}
}

func joinList(values []string) string {
	if len(values) == 0 {
		return "none"
	}
	return strings.Join(values, ", ")
}
