package migrations

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/LinglingXiang/exodus-gw/internal/ddl"
)

const (
	TargetHead = "head"
	TargetBase = "base"
)

var (
	ErrEmptyChain       = errors.New("no revisions")
	ErrDuplicateID      = errors.New("duplicate revision id")
	ErrNoBase           = errors.New("no base revision")
	ErrMultipleBases    = errors.New("multiple base revisions")
	ErrDanglingRevision = errors.New("down revision does not exist")
	ErrBranch           = errors.New("revision has more than one child")
	ErrUnreachable      = errors.New("revision is not reachable from base")
	ErrUnknownRevision  = errors.New("unknown revision")
	// Upgrade target behind the applied revision, or downgrade target ahead of it
	ErrWrongDirection = errors.New("target is on the wrong side of the applied revision")
)

type Func func(ctx context.Context, s *ddl.Schema) error

// One step of the schema history
type Revision struct {
	Created   time.Time
	Upgrade   Func
	Downgrade Func
	// Populates rows that Upgrade is expected to carry over. Only runs when
	// test data is enabled on the migrator.
	UpgradeTestData Func
	ID              string
	// Empty for the base revision
	DownRevision string
	Message      string
}

var registered = map[string]*Revision{}

func register(r *Revision) {
	if _, ok := registered[r.ID]; ok {
		panic(fmt.Sprintf("revision %s registered twice", r.ID))
	}

	registered[r.ID] = r
}

// A validated, linear revision history, base first
type Chain struct {
	byID      map[string]int
	revisions []*Revision
}

// Every revision shipped with exodus-gw
func Default() (*Chain, error) {
	return NewChain(slices.Collect(maps.Values(registered))...)
}

// Orders revisions by their down revision links. The graph must be a single
// line: one base, no branches, no cycles, no links to unknown revisions.
func NewChain(revisions ...*Revision) (*Chain, error) {
	if len(revisions) == 0 {
		return nil, ErrEmptyChain
	}

	byID := make(map[string]*Revision, len(revisions))
	children := make(map[string]*Revision, len(revisions))
	var base *Revision

	for _, r := range revisions {
		if _, ok := byID[r.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
		}
		byID[r.ID] = r
	}

	for _, r := range revisions {
		if r.DownRevision == "" {
			if base != nil {
				return nil, fmt.Errorf("%w: %s and %s", ErrMultipleBases, base.ID, r.ID)
			}
			base = r
			continue
		}

		if _, ok := byID[r.DownRevision]; !ok {
			return nil, fmt.Errorf("%w: %s revises %s", ErrDanglingRevision, r.ID, r.DownRevision)
		}

		if other, ok := children[r.DownRevision]; ok {
			return nil, fmt.Errorf("%w: %s is revised by %s and %s", ErrBranch, r.DownRevision, other.ID, r.ID)
		}
		children[r.DownRevision] = r
	}

	if base == nil {
		return nil, ErrNoBase
	}

	chain := &Chain{byID: make(map[string]int, len(revisions))}
	for r := base; r != nil; r = children[r.ID] {
		chain.byID[r.ID] = len(chain.revisions)
		chain.revisions = append(chain.revisions, r)
	}

	// anything left over hangs off a cycle
	if len(chain.revisions) != len(revisions) {
		for _, r := range revisions {
			if _, ok := chain.byID[r.ID]; !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnreachable, r.ID)
			}
		}
	}

	return chain, nil
}

func (c *Chain) Base() *Revision {
	return c.revisions[0]
}

func (c *Chain) Head() *Revision {
	return c.revisions[len(c.revisions)-1]
}

// Revisions from base to head
func (c *Chain) History() []*Revision {
	return slices.Clone(c.revisions)
}

func (c *Chain) Lookup(id string) (*Revision, bool) {
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}

	return c.revisions[i], true
}

// Position of a revision counting from 1 at base. Zero is the empty schema.
func (c *Chain) version(id string) (int64, error) {
	i, ok := c.byID[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownRevision, id)
	}

	return int64(i + 1), nil
}

// Revision ID at a position, "" for the empty schema
func (c *Chain) revisionAt(version int64) string {
	if version <= 0 || version > int64(len(c.revisions)) {
		return ""
	}

	return c.revisions[version-1].ID
}

func (c *Chain) upgradeTarget(target string) (int64, error) {
	if target == "" || target == TargetHead {
		return int64(len(c.revisions)), nil
	}

	return c.version(target)
}

// Resolves base, a relative step such as -1, or a revision ID. A revision ID
// target stays applied.
func (c *Chain) downgradeTarget(target string, current int64) (int64, error) {
	if target == TargetBase {
		return 0, nil
	}

	if strings.HasPrefix(target, "-") {
		steps, err := strconv.ParseInt(target[1:], 10, 64)
		if err != nil || steps <= 0 {
			return 0, fmt.Errorf("%w: %s", ErrUnknownRevision, target)
		}

		return max(current-steps, 0), nil
	}

	return c.version(target)
}
