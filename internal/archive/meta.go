// Package archive carves time ranges out of a room's record log into named,
// immutable snapshots. Each archive is a pair of sibling files in the
// room's archives/ directory: <name>.csv holds the samples in the log's line
// format and <name>.toml holds its Meta.
package archive

import (
	"fmt"
	"sort"
	"time"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fsutil"
)

// Directory names inside a room directory.
const (
	DirName     = "archives"
	DeletedName = "deleted"
)

// MaxNameLen is the longest accepted archive name.
const MaxNameLen = 200

const (
	dataExt = ".csv"
	metaExt = ".toml"
)

// Meta describes one committed archive.
type Meta struct {
	StartTime time.Time `toml:"start_time" json:"start_time"`
	EndTime   time.Time `toml:"end_time" json:"end_time"`
	Name      string    `toml:"archive_name" json:"archive_name"`
	Count     int       `toml:"records_num" json:"records_num"`
}

// Less orders archives by start time, then name, then end time, then count.
func (m Meta) Less(o Meta) bool {
	if !m.StartTime.Equal(o.StartTime) {
		return m.StartTime.Before(o.StartTime)
	}
	if m.Name != o.Name {
		return m.Name < o.Name
	}
	if !m.EndTime.Equal(o.EndTime) {
		return m.EndTime.Before(o.EndTime)
	}
	return m.Count < o.Count
}

// Sort orders metas in place by Less.
func Sort(metas []Meta) {
	sort.SliceStable(metas, func(i, j int) bool { return metas[i].Less(metas[j]) })
}

// nameLayout is the date layout used by DefaultName.
const nameLayout = "20060102"

// DefaultName names an archive after the dates it covers and when it was
// taken: "<start>-<end>-by-<now>".
func DefaultName(start, end, now time.Time) string {
	return fmt.Sprintf("%s-%s-by-%s", start.Format(nameLayout), end.Format(nameLayout), now.Format(nameLayout+"_150405"))
}

// ValidateName returns an InvalidArchiveName fault if name cannot be used
// as an archive file base name.
func ValidateName(name string) error {
	if err := fsutil.ValidName(name); err != nil {
		return &fault.Error{Kind: fault.InvalidArchiveName, Op: "archive", Msg: err.Error()}
	}
	// Stored and deleted file names extend name with suffixes.
	if len(name) > MaxNameLen {
		return fault.Newf(fault.InvalidArchiveName, "archive", "name longer than %d bytes", MaxNameLen)
	}
	return nil
}
