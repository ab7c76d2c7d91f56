// Package record persists sampled degree values to an append-only,
// line-based log file, one file per room. Each line is
// "<RFC 3339 timestamp>,<value>". A Log is opened once per active room and
// replaced as a whole when the room changes or an archive is committed.
package record

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
)

// Sample is one observation of the remaining degree.
type Sample struct {
	Time  time.Time
	Value float32
}

// FormatLine renders s as a log line without the trailing newline.
func FormatLine(s Sample) string {
	return s.Time.Format(time.RFC3339Nano) + "," + strconv.FormatFloat(float64(s.Value), 'f', -1, 32)
}

// ParseLine parses one log line (surrounding whitespace ignored).
func ParseLine(line string) (Sample, error) {
	ts, val, ok := strings.Cut(strings.TrimSpace(line), ",")
	if !ok {
		return Sample{}, fmt.Errorf("missing ',' separator in %q", line)
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(ts))
	if err != nil {
		return Sample{}, fmt.Errorf("timestamp: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(val), 32)
	if err != nil {
		return Sample{}, fmt.Errorf("value: %w", err)
	}
	return Sample{Time: t, Value: float32(v)}, nil
}

// Encode writes samples to w, one line each.
func Encode(w io.Writer, samples []Sample) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		if _, err := bw.WriteString(FormatLine(s) + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Decode parses every non-empty line of r. A line that does not parse is a
// MalformedLog fault naming its 1-based line number.
func Decode(r io.Reader) ([]Sample, error) {
	var samples []Sample
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		s, err := ParseLine(line)
		if err != nil {
			return nil, &fault.Error{Kind: fault.MalformedLog, Op: "decode", Msg: fmt.Sprintf("line %d", n), Err: err}
		}
		samples = append(samples, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fault.Wrap(fault.Storage, "decode", err)
	}
	return samples, nil
}

// SortByTime orders samples by timestamp, keeping input order for ties.
func SortByTime(samples []Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Time.Before(samples[j].Time)
	})
}

// Bounds returns the first and last timestamps of time-sorted samples.
// ok is false when samples is empty.
func Bounds(samples []Sample) (start, end time.Time, ok bool) {
	if len(samples) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return samples[0].Time, samples[len(samples)-1].Time, true
}

// TimeSpan selects samples by time. A nil bound is open; both bounds are
// inclusive.
type TimeSpan struct {
	Start *time.Time `json:"start_time,omitempty" toml:"start_time,omitempty"`
	End   *time.Time `json:"end_time,omitempty" toml:"end_time,omitempty"`
}

// All matches every sample.
var All = TimeSpan{}

// Before returns the span of everything up to and including end.
func Before(end time.Time) TimeSpan { return TimeSpan{End: &end} }

// After returns the span of everything from start on.
func After(start time.Time) TimeSpan { return TimeSpan{Start: &start} }

// Between returns the closed span [start, end].
func Between(start, end time.Time) TimeSpan { return TimeSpan{Start: &start, End: &end} }

// Contains reports whether t lies within the span.
func (s TimeSpan) Contains(t time.Time) bool {
	return (s.Start == nil || !t.Before(*s.Start)) && (s.End == nil || !t.After(*s.End))
}

// Partition splits samples into those inside and outside the span.
// Relative order is preserved in both results.
func (s TimeSpan) Partition(samples []Sample) (inside, outside []Sample) {
	for _, smp := range samples {
		if s.Contains(smp.Time) {
			inside = append(inside, smp)
		} else {
			outside = append(outside, smp)
		}
	}
	return inside, outside
}

func (s TimeSpan) String() string {
	bound := func(t *time.Time) string {
		if t == nil {
			return "…"
		}
		return t.Format(time.RFC3339)
	}
	return "[" + bound(s.Start) + ", " + bound(s.End) + "]"
}
