package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(revisions []*Revision) []string {
	out := make([]string, 0, len(revisions))
	for _, r := range revisions {
		out = append(out, r.ID)
	}
	return out
}

func TestDefaultChain(t *testing.T) {
	chain, err := Default()
	require.NoError(t, err, "shipped revisions should form a valid chain")

	assert.Equal(t,
		[]string{"854e06069e65", "c164c7b69e55", "55d4111a0e09", "c46641b76073"},
		ids(chain.History()),
	)
	assert.Equal(t, "854e06069e65", chain.Base().ID)
	assert.Equal(t, "c46641b76073", chain.Head().ID)

	r, ok := chain.Lookup("c164c7b69e55")
	require.True(t, ok)
	assert.Equal(t, "854e06069e65", r.DownRevision)
	assert.Equal(t, "Add updated column to publishes and tasks", r.Message)
	assert.NotNil(t, r.UpgradeTestData)

	_, ok = chain.Lookup("nope")
	assert.False(t, ok)

	for _, r := range chain.History() {
		assert.NotNil(t, r.Upgrade, "%s has no upgrade", r.ID)
		assert.NotNil(t, r.Downgrade, "%s has no downgrade", r.ID)
		assert.False(t, r.Created.IsZero(), "%s has no create date", r.ID)
	}
}

func TestNewChain(t *testing.T) {
	rev := func(id, down string) *Revision {
		return &Revision{ID: id, DownRevision: down}
	}

	cases := map[string]struct {
		expected  error
		revisions []*Revision
	}{
		"Empty":         {ErrEmptyChain, nil},
		"Duplicate":     {ErrDuplicateID, []*Revision{rev("a", ""), rev("a", "")}},
		"NoBase":        {ErrNoBase, []*Revision{rev("a", "b"), rev("b", "a")}},
		"MultipleBases": {ErrMultipleBases, []*Revision{rev("a", ""), rev("b", "")}},
		"Dangling":      {ErrDanglingRevision, []*Revision{rev("a", ""), rev("b", "x")}},
		"Branch":        {ErrBranch, []*Revision{rev("a", ""), rev("b", "a"), rev("c", "a")}},
		"Cycle":         {ErrUnreachable, []*Revision{rev("a", ""), rev("b", "c"), rev("c", "b")}},
		"SelfLoop":      {ErrUnreachable, []*Revision{rev("a", ""), rev("b", "b")}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewChain(tc.revisions...)
			require.ErrorIs(t, err, tc.expected)
		})
	}

	t.Run("OrdersByLinks", func(t *testing.T) {
		chain, err := NewChain(rev("c", "b"), rev("a", ""), rev("b", "a"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b", "c"}, ids(chain.History()))
	})
}

func TestTargets(t *testing.T) {
	chain, err := Default()
	require.NoError(t, err)

	t.Run("Upgrade", func(t *testing.T) {
		for target, expected := range map[string]int64{
			"":             4,
			"head":         4,
			"854e06069e65": 1,
			"c164c7b69e55": 2,
		} {
			version, err := chain.upgradeTarget(target)
			require.NoError(t, err)
			assert.Equal(t, expected, version, "target %q", target)
		}

		_, err := chain.upgradeTarget("deadbeef")
		require.ErrorIs(t, err, ErrUnknownRevision)
	})

	t.Run("Downgrade", func(t *testing.T) {
		for target, expected := range map[string]int64{
			"base":         0,
			"-1":           3,
			"-2":           2,
			"-9":           0,
			"c164c7b69e55": 2,
		} {
			version, err := chain.downgradeTarget(target, 4)
			require.NoError(t, err)
			assert.Equal(t, expected, version, "target %q", target)
		}

		for _, target := range []string{"-0", "-x", "deadbeef", "head"} {
			_, err := chain.downgradeTarget(target, 4)
			require.ErrorIs(t, err, ErrUnknownRevision, "target %q", target)
		}
	})

	t.Run("RevisionAt", func(t *testing.T) {
		assert.Empty(t, chain.revisionAt(0))
		assert.Equal(t, "854e06069e65", chain.revisionAt(1))
		assert.Equal(t, "c46641b76073", chain.revisionAt(4))
		assert.Empty(t, chain.revisionAt(5))
	})
}
