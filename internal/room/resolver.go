package room

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/fault"
	"github.com/LISSConsulting/LISSTech.PowerUsage/internal/session"
)

// Place is one entry of a directory listing.
type Place struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Info is the resolved, human-readable location of a room.
type Info struct {
	Area     Place `json:"area"`
	District Place `json:"district"`
	Building Place `json:"building"`
	Floor    Place `json:"floor"`
	Room     Place `json:"room"`
}

func (i Info) String() string {
	return i.Area.Name + " " + i.District.Name + " " + i.Building.Name + " " + i.Floor.Name + " " + i.Room.Name
}

// Directory is the payment site's location directory. Implementations
// report undecodable responses as fault.NotAuthenticated.
type Directory interface {
	// Districts lists the areas and the districts of the site.
	Districts(ctx context.Context, creds session.Credentials) (areas, districts []Place, err error)
	Buildings(ctx context.Context, creds session.Credentials, area, district string) ([]Place, error)
	Floors(ctx context.Context, creds session.Credentials, area, district, building string) ([]Place, error)
	Rooms(ctx context.Context, creds session.Credentials, area, district, building, floor string) ([]Place, error)
}

// DefaultResolveTimeout bounds one uncached resolution.
const DefaultResolveTimeout = 30 * time.Second

// Resolver memoizes Directory lookups per Identity for the life of the
// process. Entries are never replaced or evicted.
type Resolver struct {
	dir     Directory
	timeout time.Duration

	mu    sync.Mutex
	cache map[Identity]Info

	group singleflight.Group
}

// NewResolver returns a Resolver over dir. A timeout <= 0 selects
// DefaultResolveTimeout.
func NewResolver(dir Directory, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}
	return &Resolver{dir: dir, timeout: timeout, cache: make(map[Identity]Info)}
}

// Cached returns the memoized info for id.
func (r *Resolver) Cached(id Identity) (Info, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.cache[id]
	return info, ok
}

// Resolve returns the location of id, from the cache when present.
// Otherwise it walks the directory (districts, buildings, floors, rooms)
// without holding any lock; concurrent resolutions of the same identity
// share one walk. A failed or timed-out walk leaves the cache untouched.
func (r *Resolver) Resolve(ctx context.Context, id Identity, creds session.Credentials) (Info, error) {
	if id.Valid() {
		if info, ok := r.Cached(id); ok {
			return info, nil
		}
	}
	parts, err := id.Parts()
	if err != nil {
		return Info{}, err
	}

	key := id.RoomNo + "\x00" + strconv.Itoa(id.Area) + "\x00" + id.Building
	v, err, _ := r.group.Do(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return r.walk(ctx, id, parts, creds)
	})
	if err != nil {
		return Info{}, err
	}
	info := v.(Info)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[id]; ok {
		return existing, nil
	}
	r.cache[id] = info
	return info, nil
}

func (r *Resolver) walk(ctx context.Context, id Identity, p Parts, creds session.Credentials) (Info, error) {
	area := id.AreaID()

	areas, districts, err := r.dir.Districts(ctx, creds)
	if err != nil {
		return Info{}, err
	}
	if len(areas) == 0 {
		return Info{}, fault.Newf(fault.RoomInfoNotFound, "resolve", "no area listed")
	}
	var info Info
	// The site lists a single area; the last entry is the one in use.
	info.Area = areas[len(areas)-1]
	if info.District, err = findID(districts, p.District, "district"); err != nil {
		return Info{}, err
	}

	buildings, err := r.dir.Buildings(ctx, creds, area, p.District)
	if err != nil {
		return Info{}, err
	}
	if info.Building, err = findID(buildings, id.Building, "building"); err != nil {
		return Info{}, err
	}

	floors, err := r.dir.Floors(ctx, creds, area, p.District, id.Building)
	if err != nil {
		return Info{}, err
	}
	if info.Floor, err = findID(floors, p.Floor, "floor"); err != nil {
		return Info{}, err
	}

	rooms, err := r.dir.Rooms(ctx, creds, area, p.District, id.Building, p.Floor)
	if err != nil {
		return Info{}, err
	}
	found := false
	for _, rm := range rooms {
		if rm.Name == p.Room {
			info.Room, found = rm, true
			break
		}
	}
	if !found {
		return Info{}, fault.Newf(fault.RoomInfoNotFound, "resolve", "room %q", p.Room)
	}
	return info, nil
}

func findID(places []Place, id, what string) (Place, error) {
	for _, p := range places {
		if p.ID == id {
			return p, nil
		}
	}
	return Place{}, fault.Newf(fault.RoomInfoNotFound, "resolve", "%s %q", what, id)
}
