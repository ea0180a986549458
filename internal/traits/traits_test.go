package traits

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstantiateSeedsTraitSurface(t *testing.T) {
	r := NewRegistry()
	inst := r.Instantiate("abc123", []string{"selected"}, []string{"range"})

	require.NotEmpty(t, inst.ID)
	require.Equal(t, "abc123", inst.ArtifactID)
	require.Nil(t, inst.Get("selected"))
	require.Nil(t, inst.Get("range"))
	require.Equal(t, "", inst.Get(TraitErrorMessage))
	require.Equal(t, 0, inst.Get(TraitRetryCount))

	got, ok := r.Lookup(inst.ID)
	require.True(t, ok)
	require.Same(t, inst, got)
	require.Equal(t, 1, r.Size())
}

func TestSetRejectsImports(t *testing.T) {
	r := NewRegistry()
	inst := r.Instantiate("abc123", nil, []string{"range"})

	require.Error(t, inst.Set("range", []int{1, 2}))
	require.NoError(t, inst.Set(TraitErrorMessage, "boom"))
}

func TestObserveAndUnsubscribe(t *testing.T) {
	r := NewRegistry()
	inst := r.Instantiate("abc123", []string{"selected"}, nil)

	var seen []any
	off := inst.Observe(func(name string, value any) {
		seen = append(seen, value)
	}, "selected")

	require.NoError(t, inst.Set("selected", 1))
	require.NoError(t, inst.Set(TraitErrorMessage, "ignored by filter"))
	require.NoError(t, inst.Set("selected", 2))
	require.Equal(t, []any{1, 2}, seen)

	off()
	require.NoError(t, inst.Set("selected", 3))
	require.Equal(t, []any{1, 2}, seen)
}

func TestBindSeedsSnapshotThenPushes(t *testing.T) {
	r := NewRegistry()
	source := r.Instantiate("chart", []string{"selected"}, nil)
	target := r.Instantiate("table", nil, []string{"selected"})

	require.NoError(t, source.Set("selected", []int{1, 2}))
	require.NoError(t, r.Bind(target, "selected", source))

	// Snapshot at bind time.
	require.Equal(t, []int{1, 2}, target.Get("selected"))

	// A local write is invisible downstream until commit.
	require.NoError(t, source.Set("selected", []int{3}))
	require.Equal(t, []int{1, 2}, target.Get("selected"))

	// Commit on the source pushes; the target does nothing.
	source.Commit()
	require.Equal(t, []int{3}, target.Get("selected"))
}

func TestBindValidation(t *testing.T) {
	r := NewRegistry()
	source := r.Instantiate("chart", []string{"selected"}, nil)
	target := r.Instantiate("table", nil, []string{"selected"})
	other := r.Instantiate("legend", []string{"selected"}, nil)

	require.Error(t, r.Bind(target, "undeclared", source))
	require.Error(t, r.Bind(source, "selected", target), "selected is not an import on source")
	require.Error(t, r.Bind(target, "selected", target), "self-binding")

	require.NoError(t, r.Bind(target, "selected", source))
	require.Error(t, r.Bind(target, "selected", other), "an import accepts one upstream")
}

func TestCommitFansOut(t *testing.T) {
	r := NewRegistry()
	source := r.Instantiate("chart", []string{"selected"}, nil)
	left := r.Instantiate("table", nil, []string{"selected"})
	right := r.Instantiate("legend", nil, []string{"selected"})

	require.NoError(t, r.Bind(left, "selected", source))
	require.NoError(t, r.Bind(right, "selected", source))

	require.NoError(t, source.Set("selected", "EMEA"))
	source.Commit()
	require.Equal(t, "EMEA", left.Get("selected"))
	require.Equal(t, "EMEA", right.Get("selected"))
}

func TestCommitFollowsReExports(t *testing.T) {
	r := NewRegistry()
	head := r.Instantiate("chart", []string{"selected"}, nil)
	relay := r.Instantiate("filter", []string{"selected"}, []string{"selected"})
	tail := r.Instantiate("table", nil, []string{"selected"})

	require.NoError(t, r.Bind(relay, "selected", head))
	require.NoError(t, r.Bind(tail, "selected", relay))

	require.NoError(t, head.Set("selected", 7))
	head.Commit()
	require.Equal(t, 7, relay.Get("selected"))
	require.Equal(t, 7, tail.Get("selected"))
}

func TestCommitStopsOnCycle(t *testing.T) {
	r := NewRegistry()
	a := r.Instantiate("a", []string{"selected"}, []string{"selected"})
	b := r.Instantiate("b", []string{"selected"}, []string{"selected"})

	require.NoError(t, r.Bind(b, "selected", a))
	require.NoError(t, r.Bind(a, "selected", b))

	var aFires, bFires int
	a.Observe(func(string, any) { aFires++ }, "selected")
	b.Observe(func(string, any) { bFires++ }, "selected")

	// Must terminate; each instance is visited at most once per walk.
	a.Commit()
	require.Equal(t, 1, bFires)
	require.Equal(t, 0, aFires, "walk must not loop back into the origin")
}

func TestTeardownDetachesEdges(t *testing.T) {
	r := NewRegistry()
	source := r.Instantiate("chart", []string{"selected"}, nil)
	target := r.Instantiate("table", nil, []string{"selected"})
	require.NoError(t, r.Bind(target, "selected", source))

	r.Teardown(target)
	require.Equal(t, 1, r.Size())
	_, ok := r.Lookup(target.ID)
	require.False(t, ok)

	// Commits on the source no longer reach the dead instance.
	require.NoError(t, source.Set("selected", "x"))
	source.Commit()
	require.Nil(t, target.Get("selected"), "detached import must stop receiving")

	// The freed import slot can be rebound.
	replacement := r.Instantiate("table2", nil, []string{"selected"})
	require.NoError(t, r.Bind(replacement, "selected", source))
	require.Equal(t, "x", replacement.Get("selected"))
}

func TestTeardownOfSourceFreesTargetImport(t *testing.T) {
	r := NewRegistry()
	source := r.Instantiate("chart", []string{"selected"}, nil)
	target := r.Instantiate("table", nil, []string{"selected"})
	require.NoError(t, r.Bind(target, "selected", source))

	r.Teardown(source)

	other := r.Instantiate("legend", []string{"selected"}, nil)
	require.NoError(t, other.Set("selected", "fresh"))
	require.NoError(t, r.Bind(target, "selected", other))
	require.Equal(t, "fresh", target.Get("selected"))
}
