// Package ports assigns stable host ports to generated services.
//
// Explicit port_default values always win. A service that already holds a
// port keeps it across regenerations. New services take the lowest free
// port at or above the floor.
package ports

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/zjrosen/kgfleet/internal/log"
)

// DefaultFloor is the lowest automatically assigned port.
const DefaultFloor = 8001

const maxPort = 65535

// ErrPortCollision matches any *CollisionError.
var ErrPortCollision = errors.New("port collision")

// Key identifies a service across the whole manifest.
type Key struct {
	Project string
	Service string
}

func (k Key) String() string {
	return k.Project + "/" + k.Service
}

func compareKeys(a, b Key) int {
	if c := cmp.Compare(a.Project, b.Project); c != 0 {
		return c
	}
	return cmp.Compare(a.Service, b.Service)
}

// Assignments maps services to host ports.
type Assignments map[Key]int

// Keys returns the assigned keys sorted by project then service.
func (a Assignments) Keys() []Key {
	return slices.SortedFunc(maps.Keys(a), compareKeys)
}

// ForProject returns service id → port for one project.
func (a Assignments) ForProject(project string) map[string]int {
	out := make(map[string]int)
	for k, p := range a {
		if k.Project == project {
			out[k.Service] = p
		}
	}
	return out
}

// Request asks for a port for one service.
type Request struct {
	Key Key
	// Explicit is the configured port_default, if any.
	Explicit *int
}

// CollisionError reports a port claimed explicitly by more than one owner.
type CollisionError struct {
	Port   int
	Owners []string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("port %d is claimed by %s", e.Port, strings.Join(e.Owners, " and "))
}

// Is reports whether target is ErrPortCollision.
func (e *CollisionError) Is(target error) bool { return target == ErrPortCollision }

// Allocator assigns ports.
type Allocator struct {
	Floor int
	// Reserved ports are held by services outside the generated set, such
	// as those published by the base template.
	Reserved map[int]string
	// Held ports are recorded for services that are not generated this run,
	// such as those of disabled projects. New services skip them; an
	// explicit port_default may still claim one.
	Held map[int]string
}

// NewAllocator returns an allocator starting at floor (DefaultFloor if <= 0).
func NewAllocator(floor int) *Allocator {
	if floor <= 0 {
		floor = DefaultFloor
	}
	return &Allocator{Floor: floor, Reserved: make(map[int]string), Held: make(map[int]string)}
}

// Reserve marks port as used by owner.
func (a *Allocator) Reserve(port int, owner string) {
	a.Reserved[port] = owner
}

// Hold keeps port out of automatic assignment on behalf of owner.
func (a *Allocator) Hold(port int, owner string) {
	a.Held[port] = owner
}

// Allocate returns the assignment for exactly the requested services.
// existing holds assignments from the previous generation; services absent
// from requests are dropped.
func (a *Allocator) Allocate(existing Assignments, requests []Request) (Assignments, error) {
	reqs := slices.Clone(requests)
	slices.SortFunc(reqs, func(x, y Request) int { return compareKeys(x.Key, y.Key) })

	owners := make(map[int][]string)
	for port, owner := range a.Reserved {
		owners[port] = append(owners[port], owner)
	}

	result := make(Assignments, len(reqs))
	used := make(map[int]Key)

	// 1. explicit ports
	for _, r := range reqs {
		if r.Explicit == nil {
			continue
		}
		owners[*r.Explicit] = append(owners[*r.Explicit], r.Key.String())
		result[r.Key] = *r.Explicit
		used[*r.Explicit] = r.Key
		if holder, held := a.Held[*r.Explicit]; held {
			log.Warn(log.CatPorts, "explicit port takes a held port", "service", r.Key, "port", *r.Explicit, "held_by", holder)
		}
	}
	collisions := make([]int, 0)
	for port, list := range owners {
		if len(list) > 1 {
			collisions = append(collisions, port)
		}
	}
	if len(collisions) > 0 {
		slices.Sort(collisions)
		errs := make([]error, 0, len(collisions))
		for _, port := range collisions {
			list := slices.Clone(owners[port])
			slices.Sort(list)
			errs = append(errs, &CollisionError{Port: port, Owners: list})
		}
		return nil, errors.Join(errs...)
	}

	// 2. previously assigned ports
	for _, r := range reqs {
		if r.Explicit != nil {
			continue
		}
		prev, ok := existing[r.Key]
		if !ok {
			continue
		}
		if _, reserved := a.Reserved[prev]; reserved {
			log.Warn(log.CatPorts, "previous port now reserved, reassigning", "service", r.Key, "port", prev)
			continue
		}
		if holder, taken := used[prev]; taken {
			log.Warn(log.CatPorts, "previous port now claimed explicitly, reassigning",
				"service", r.Key, "port", prev, "claimed_by", holder)
			continue
		}
		result[r.Key] = prev
		used[prev] = r.Key
	}

	// 3. new services
	next := a.Floor
	for _, r := range reqs {
		if _, done := result[r.Key]; done {
			continue
		}
		for {
			_, taken := used[next]
			_, reserved := a.Reserved[next]
			_, held := a.Held[next]
			if !taken && !reserved && !held {
				break
			}
			next++
		}
		if next > maxPort {
			return nil, fmt.Errorf("no free port at or above %d for %s", a.Floor, r.Key)
		}
		result[r.Key] = next
		used[next] = r.Key
		log.Debug(log.CatPorts, "assigned new port", "service", r.Key, "port", next)
	}

	return result, nil
}
