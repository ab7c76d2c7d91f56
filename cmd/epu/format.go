package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/archive"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/record"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/room"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/session"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/status"
)

const displayTime = "2006-01-02 15:04:05"

// timeLayouts are accepted by parseTime, most specific first.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTime parses a user-supplied instant. Layouts without an offset are
// read in loc.
func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q (use RFC 3339, \"YYYY-MM-DD HH:MM[:SS]\" or \"YYYY-MM-DD\")", s)
}

// spanFromFlags builds a TimeSpan from optional --after/--before values.
func spanFromFlags(after, before string, loc *time.Location) (record.TimeSpan, error) {
	var span record.TimeSpan
	if after != "" {
		t, err := parseTime(after, loc)
		if err != nil {
			return span, fmt.Errorf("--after: %w", err)
		}
		span.Start = &t
	}
	if before != "" {
		t, err := parseTime(before, loc)
		if err != nil {
			return span, fmt.Errorf("--before: %w", err)
		}
		span.End = &t
	}
	if span.Start != nil && span.End != nil && span.End.Before(*span.Start) {
		return span, fmt.Errorf("--before %s is earlier than --after %s", before, after)
	}
	return span, nil
}

// formatSamples renders samples one per line. A positive limit keeps only
// the newest limit samples.
func formatSamples(samples []record.Sample, limit int) string {
	if len(samples) == 0 {
		return "No records.\n"
	}
	if limit > 0 && len(samples) > limit {
		samples = samples[len(samples)-limit:]
	}
	var b strings.Builder
	for _, s := range samples {
		fmt.Fprintf(&b, "%s  %8.2f\n", s.Time.Format(displayTime), s.Value)
	}
	return b.String()
}

func formatArchives(metas []archive.Meta) string {
	if len(metas) == 0 {
		return "No archives.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-45s  %-19s  %-19s  %7s\n", "NAME", "START", "END", "RECORDS")
	for _, m := range metas {
		fmt.Fprintf(&b, "%-45s  %-19s  %-19s  %7d\n", m.Name, m.StartTime.Format(displayTime), m.EndTime.Format(displayTime), m.Count)
	}
	return b.String()
}

func formatMeta(m archive.Meta) string {
	return fmt.Sprintf("Archive %s: %d records from %s to %s\n",
		m.Name, m.Count, m.StartTime.Format(displayTime), m.EndTime.Format(displayTime))
}

func formatRoom(id room.Identity) string {
	if id.Empty() {
		return "No room configured (recording into the \"" + room.UnknownDir + "\" directory).\n"
	}
	return fmt.Sprintf("  %-12s %s\n  %-12s %d\n  %-12s %s\n", "room_no:", id.RoomNo, "elcarea:", id.Area, "elcbuis:", id.Building)
}

func formatRoomInfo(info room.Info) string {
	var b strings.Builder
	for _, row := range []struct {
		label string
		place room.Place
	}{
		{"Area", info.Area},
		{"District", info.District},
		{"Building", info.Building},
		{"Floor", info.Floor},
		{"Room", info.Room},
	} {
		fmt.Fprintf(&b, "  %-10s %s (%s)\n", row.label+":", row.place.Name, row.place.ID)
	}
	return b.String()
}

// statusView is everything `epu status` reports.
type statusView struct {
	Room        room.Identity
	RoomDir     string
	Last        *record.Sample
	Records     int
	Archives    int
	Credentials session.Credentials
	Poller      status.State
	Now         time.Time
}

func formatStatus(v statusView) string {
	var b strings.Builder
	b.WriteString("Power Usage Status\n")
	b.WriteString("──────────────────\n")
	row := func(label, format string, args ...any) {
		fmt.Fprintf(&b, "  %-20s "+format+"\n", append([]any{label + ":"}, args...)...)
	}

	if v.Room.Empty() {
		row("Room", "%s", "not configured")
	} else {
		row("Room", "%s", v.Room.String())
	}
	row("Directory", "%s", v.RoomDir)
	if v.Last != nil {
		row("Last record", "%.2f at %s", v.Last.Value, v.Last.Time.Format(displayTime))
	} else {
		row("Last record", "%s", "none")
	}
	row("Records", "%d", v.Records)
	row("Archives", "%d", v.Archives)
	if v.Credentials.Empty() {
		row("Credentials", "%s", "not set")
	} else {
		row("Credentials", "%s", v.Credentials.String())
	}

	p := v.Poller
	switch {
	case p.PID == 0:
		row("Poller", "%s", "never started")
	case p.Running():
		row("Poller", "running (pid %d, up %s)", p.PID, v.Now.Sub(p.StartedAt).Round(time.Second))
	default:
		row("Poller", "stopped at %s", p.StoppedAt.Format(displayTime))
	}
	if p.PID != 0 {
		if !p.LastSuccessAt.IsZero() {
			row("Last sample", "%.2f, %s ago", p.LastValue, v.Now.Sub(p.LastSuccessAt).Round(time.Second))
		}
		row("Auth", "%s", p.Auth)
		if p.ConsecutiveErrs > 0 {
			row("Failures", "%d in a row, last: %s", p.ConsecutiveErrs, p.LastError)
		}
	}
	return b.String()
}
