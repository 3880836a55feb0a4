package exploration

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.skia.org/culprit/culprit/go/change"
	"go.skia.org/culprit/culprit/go/compare"
	"go.skia.org/culprit/culprit/go/resolver/testutils"
)

const repoURL = "https://example.googlesource.com/repo"

func midpointFor(repo *testutils.LinearRepo) MidpointFunc {
	return func(a, b *change.Change) (*change.Change, error) {
		m, err := change.Midpoint(context.Background(), repo, a, b)
		if err != nil {
			return nil, err
		}
		if m.Equal(a) {
			return nil, nil
		}
		return m, nil
	}
}

func always(v compare.Verdict) ChangeDetected {
	return func(a, b *change.Change) compare.Verdict { return v }
}

func noUnknown(t *testing.T) OnUnknown {
	return func(a, b *change.Change) {
		assert.Fail(t, "unexpected call to onUnknown")
	}
}

func positions(repo *testutils.LinearRepo, changes []*change.Change) []int {
	ret := make([]int, 0, len(changes))
	for _, c := range changes {
		ret = append(ret, repo.IndexOf(c.Base().GitHash))
	}
	return ret
}

func TestSpeculate_EmptyAndSingle_ReturnNothing(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 4)
	ins, err := Speculate(nil, always(compare.Different), noUnknown(t), midpointFor(repo), DefaultLevels)
	require.NoError(t, err)
	assert.Empty(t, ins)

	ins, err = Speculate([]*change.Change{repo.Change(0)}, always(compare.Different), noUnknown(t), midpointFor(repo), DefaultLevels)
	require.NoError(t, err)
	assert.Empty(t, ins)
}

func TestSpeculate_OneLevel_InsertsMidpoint(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 11)
	changes := []*change.Change{repo.Change(0), repo.Change(10)}

	ins, err := Speculate(changes, always(compare.Different), noUnknown(t), midpointFor(repo), 1)
	require.NoError(t, err)
	require.Len(t, ins, 1)
	assert.Equal(t, 1, ins[0].Index)
	assert.True(t, ins[0].Change.Equal(repo.Change(5)))
}

func TestSpeculate_TwoLevels_ReturnsReversedInfixOrder(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 17)
	changes := []*change.Change{repo.Change(0), repo.Change(16)}

	ins, err := Speculate(changes, always(compare.Different), noUnknown(t), midpointFor(repo), 2)
	require.NoError(t, err)
	require.Len(t, ins, 3)
	for _, i := range ins {
		assert.Equal(t, 1, i.Index)
	}
	assert.Equal(t, []int{12, 8, 4}, positions(repo, []*change.Change{ins[0].Change, ins[1].Change, ins[2].Change}))
	assert.Equal(t, []int{0, 4, 8, 12, 16}, positions(repo, Apply(changes, ins)))
}

func TestSpeculate_Same_NoInsertions(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 11)
	ins, err := Speculate([]*change.Change{repo.Change(0), repo.Change(10)}, always(compare.Same), noUnknown(t), midpointFor(repo), DefaultLevels)
	require.NoError(t, err)
	assert.Empty(t, ins)
	assert.Zero(t, repo.RangeCalls())
}

func TestSpeculate_Unknown_CallsOnUnknownAndDoesNotSpeculate(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 11)
	changes := []*change.Change{repo.Change(0), repo.Change(4), repo.Change(10)}
	var unknown [][2]int
	onUnknown := func(a, b *change.Change) {
		unknown = append(unknown, [2]int{repo.IndexOf(a.Base().GitHash), repo.IndexOf(b.Base().GitHash)})
	}
	detected := func(a, b *change.Change) compare.Verdict {
		if a.Equal(repo.Change(4)) {
			return compare.Unknown
		}
		return compare.Same
	}

	ins, err := Speculate(changes, detected, onUnknown, midpointFor(repo), DefaultLevels)
	require.NoError(t, err)
	assert.Empty(t, ins)
	assert.Equal(t, [][2]int{{4, 10}}, unknown)
}

func TestSpeculate_AdjacentDifferentPair_NothingToInsert(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 11)
	ins, err := Speculate([]*change.Change{repo.Change(3), repo.Change(4)}, always(compare.Different), noUnknown(t), midpointFor(repo), DefaultLevels)
	require.NoError(t, err)
	assert.Empty(t, ins)
}

func TestSpeculate_MidpointError_Propagates(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 11)
	myErr := errors.New("boom")
	_, err := Speculate([]*change.Change{repo.Change(0), repo.Change(10)}, always(compare.Different), noUnknown(t),
		func(a, b *change.Change) (*change.Change, error) { return nil, myErr }, DefaultLevels)
	assert.ErrorIs(t, err, myErr)
}

func TestSpeculate_NonLinear_Propagates(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 11)
	_, err := Speculate([]*change.Change{repo.Change(8), repo.Change(2)}, always(compare.Different), noUnknown(t), midpointFor(repo), DefaultLevels)
	assert.ErrorIs(t, err, change.ErrNonLinear)
}

func TestSpeculate_AlreadyPresentMidpoint_Skipped(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 11)
	// A midpoint function that always proposes an existing change.
	existing := repo.Change(0)
	ins, err := Speculate([]*change.Change{existing, repo.Change(10)}, always(compare.Different), noUnknown(t),
		func(a, b *change.Change) (*change.Change, error) { return existing, nil }, DefaultLevels)
	require.NoError(t, err)
	assert.Empty(t, ins)
}

func TestSpeculate_SameInputs_SameOutput(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 64)
	changes := []*change.Change{repo.Change(0), repo.Change(20), repo.Change(41), repo.Change(63)}
	detected := func(a, b *change.Change) compare.Verdict {
		if a.Equal(repo.Change(20)) {
			return compare.Same
		}
		return compare.Different
	}
	first, err := Speculate(changes, detected, noUnknown(t), midpointFor(repo), DefaultLevels)
	require.NoError(t, err)
	second, err := Speculate(changes, detected, noUnknown(t), midpointFor(repo), DefaultLevels)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Len(t, changes, 4, "input is not modified")
}

// Random True/False/None patterns across many pairs must always leave the
// list strictly ascending, and only ever fill in ranges that differ.
func TestSpeculate_RandomVerdicts_ApplyKeepsAscendingOrder(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	repo := testutils.NewLinearRepo(repoURL, 200)
	verdicts := []compare.Verdict{compare.Unknown, compare.Same, compare.Different}

	for iter := 0; iter < 200; iter++ {
		// A random ascending subset of the repo.
		var changes []*change.Change
		for i := 0; i < 200; i++ {
			if r.Intn(12) == 0 {
				changes = append(changes, repo.Change(i))
			}
		}
		pairVerdict := map[string]compare.Verdict{}
		for i := 0; i+1 < len(changes); i++ {
			pairVerdict[changes[i].Key()] = verdicts[r.Intn(len(verdicts))]
		}
		detected := func(a, b *change.Change) compare.Verdict {
			return pairVerdict[a.Key()]
		}
		levels := 1 + r.Intn(3)

		ins, err := Speculate(changes, detected, func(a, b *change.Change) {}, midpointFor(repo), levels)
		require.NoError(t, err)

		got := positions(repo, Apply(changes, ins))
		for i := 1; i < len(got); i++ {
			require.Less(t, got[i-1], got[i], "iteration %d: %v", iter, got)
		}

		for _, in := range ins {
			pos := repo.IndexOf(in.Change.Base().GitHash)
			a, b := changes[in.Index-1], changes[in.Index]
			assert.Equal(t, compare.Different, pairVerdict[a.Key()])
			assert.Greater(t, pos, repo.IndexOf(a.Base().GitHash))
			assert.Less(t, pos, repo.IndexOf(b.Base().GitHash))
		}
		assert.LessOrEqual(t, len(ins), (1<<levels-1)*len(changes))
	}
}

func TestApply_DoesNotModifyInput(t *testing.T) {
	repo := testutils.NewLinearRepo(repoURL, 5)
	changes := []*change.Change{repo.Change(0), repo.Change(4)}
	out := Apply(changes, []Insertion{{Index: 1, Change: repo.Change(2)}})
	assert.Equal(t, []int{0, 4}, positions(repo, changes))
	assert.Equal(t, []int{0, 2, 4}, positions(repo, out))
}
