// Package room identifies the dormitory room being tracked and resolves it
// to human-readable location names.
package room

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fsutil"
)

// ConfigFileName is the persisted room selection inside the config
// directory.
const ConfigFileName = "room.toml"

// UnknownDir is the room directory used while no room is selected.
const UnknownDir = "unknown"

// Identity selects one room. RoomNo has the form
// "<room>_<district>_<unused>_<floor>"; Building and Area are supplied
// alongside it by the payment site.
type Identity struct {
	RoomNo   string `toml:"room_no" json:"room_no"`
	Area     int    `toml:"elcarea" json:"elcarea"`
	Building string `toml:"elcbuis" json:"elcbuis"`
}

// Parts are the components encoded in Identity.RoomNo.
type Parts struct {
	Room     string
	District string
	Floor    string
}

// Empty reports whether no room is selected.
func (id Identity) Empty() bool { return id == Identity{} }

// AreaID is the area code in the form the payment site expects.
func (id Identity) AreaID() string { return strconv.Itoa(id.Area) }

// Parts splits RoomNo into its components.
func (id Identity) Parts() (Parts, error) {
	p := strings.SplitN(id.RoomNo, "_", 4)
	if len(p) != 4 || p[0] == "" || p[1] == "" || p[3] == "" {
		return Parts{}, fault.Newf(fault.InvalidRoomConfig, "room", "room_no %q is not <room>_<district>_<x>_<floor>", id.RoomNo)
	}
	return Parts{Room: p[0], District: p[1], Floor: p[3]}, nil
}

// Valid reports whether id is complete enough to query the payment site.
func (id Identity) Valid() bool {
	if id.RoomNo == "" || id.Building == "" {
		return false
	}
	_, err := id.Parts()
	return err == nil
}

// Validate checks that id can name a room directory. The empty identity is
// valid and maps to UnknownDir.
func (id Identity) Validate() error {
	if id.RoomNo == "" {
		return nil
	}
	if err := fsutil.ValidName(id.RoomNo); err != nil {
		return &fault.Error{Kind: fault.InvalidRoomConfig, Op: "room", Msg: err.Error()}
	}
	return nil
}

// DirName is the name of the room's directory under the data directory.
func (id Identity) DirName() string {
	if id.RoomNo == "" {
		return UnknownDir
	}
	return id.RoomNo
}

// Dir validates id and returns its directory under dataDir without creating
// it.
func (id Identity) Dir(dataDir string) (string, error) {
	if err := id.Validate(); err != nil {
		return "", err
	}
	return filepath.Join(dataDir, id.DirName()), nil
}

func (id Identity) String() string {
	if id.Empty() {
		return "<none>"
	}
	return fmt.Sprintf("%s (area %d, building %s)", id.RoomNo, id.Area, id.Building)
}

// Load reads the persisted identity. A missing file yields the empty
// identity.
func Load(path string) (Identity, error) {
	var id Identity
	if _, err := toml.DecodeFile(path, &id); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Identity{}, nil
		}
		return Identity{}, fmt.Errorf("room: load %s: %w", path, err)
	}
	return id, nil
}

// Save persists id to path using a write-then-rename.
func Save(path string, id Identity) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(id); err != nil {
		return fault.Wrap(fault.SaveRoomConfig, "save room", err)
	}
	if err := fsutil.WriteFileAtomic(path, buf.Bytes()); err != nil {
		return fault.Wrap(fault.SaveRoomConfig, "save room", err)
	}
	return nil
}
