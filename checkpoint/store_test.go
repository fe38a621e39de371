package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/hupe1980/trisum/blobstore"
	"github.com/hupe1980/trisum/diffset"
	ifs "github.com/hupe1980/trisum/internal/fs"
	"github.com/hupe1980/trisum/pairindex"
	"github.com/hupe1980/trisum/resource"
	"github.com/hupe1980/trisum/row"
	"github.com/hupe1980/trisum/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func indexContents(ix *pairindex.Index) map[row.Key][]string {
	out := make(map[row.Key][]string, ix.Len())
	for k, ps := range ix.All() {
		ids := make([]string, 0, len(ps))
		for _, p := range ps {
			ids = append(ids, fmt.Sprintf("%d:%d %v %v", p.AIndex, p.BIndex, p.A, p.B))
		}
		sort.Strings(ids)
		out[k] = ids
	}
	return out
}

func diffsContents(s *diffset.Set) map[row.Key][]uint32 {
	out := make(map[row.Key][]uint32, s.Len())
	for k := range s.All() {
		out[k] = s.Origins(k)
	}
	return out
}

func fixture(t *testing.T) ([]row.Vector, []row.Vector, []row.Vector, row.Vector) {
	t.Helper()
	rng := testutil.NewRNG(42)
	target := row.Fill(3, 4)
	a, b, c := rng.PlantedRows(30, 5, 3, -5, 5, target)
	return a, b, c, target
}

func newTestStore(t *testing.T, optFns ...func(*Options)) (*Store, *blobstore.MemoryStore) {
	t.Helper()
	bs := blobstore.NewMemoryStore()
	return NewStore(bs, optFns...), bs
}

func TestIndexRoundTrip(t *testing.T) {
	ctx := context.Background()
	a, b, _, _ := fixture(t)
	ix, err := pairindex.Build(ctx, a, 0, b)
	require.NoError(t, err)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			store, _ := newTestStore(t, func(o *Options) { o.Compression = c })

			h, err := store.SaveIndex(ctx, ix, Meta{Columns: 3, Fingerprint: 7, Label: "run1"})
			require.NoError(t, err)
			assert.Equal(t, "index-run1.tsck", h.Name)
			assert.Equal(t, KindIndex, h.Kind)

			got, lh, err := store.LoadIndex(ctx, h.Name)
			require.NoError(t, err)
			assert.Equal(t, h.Header, lh.Header)
			assert.Equal(t, ix.Len(), got.Len())
			assert.Equal(t, ix.Pairs(), got.Pairs())
			assert.Equal(t, indexContents(ix), indexContents(got))

			// Bare label and LATEST resolve to the same blob.
			_, lh, err = store.LoadIndex(ctx, "run1")
			require.NoError(t, err)
			assert.Equal(t, h.Name, lh.Name)
			_, lh, err = store.LoadIndex(ctx, LatestName)
			require.NoError(t, err)
			assert.Equal(t, h.Name, lh.Name)
		})
	}
}

func TestDiffsRoundTrip(t *testing.T) {
	ctx := context.Background()
	_, _, c, target := fixture(t)
	// Duplicate a row so one key has two origins.
	c = append(c, c[0])
	d, err := diffset.Build(ctx, c, 0, target)
	require.NoError(t, err)

	store, _ := newTestStore(t)
	h, err := store.Save(ctx, d, Meta{Columns: 3, Fingerprint: 9})
	require.NoError(t, err)
	assert.Equal(t, KindDiffs, h.Kind)
	assert.Equal(t, CompressionZSTD, h.Compression)

	got, _, err := store.LoadDiffs(ctx, h.Name)
	require.NoError(t, err)
	assert.Equal(t, diffsContents(d), diffsContents(got))
	assert.Equal(t, d.Rows(), got.Rows())
}

func TestEmptyStructures(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	h, err := store.SaveIndex(ctx, pairindex.New(), Meta{Columns: 1, Label: "empty"})
	require.NoError(t, err)
	ix, _, err := store.LoadIndex(ctx, h.Name)
	require.NoError(t, err)
	assert.Zero(t, ix.Len())

	h, err = store.SaveDiffs(ctx, diffset.New(), Meta{Columns: 1, Label: "empty"})
	require.NoError(t, err)
	d, _, err := store.LoadDiffs(ctx, h.Name)
	require.NoError(t, err)
	assert.Zero(t, d.Len())
}

func TestSave_DefaultLabelAndPointer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 19, 12, 0, 0, 5, time.UTC)
	store, bs := newTestStore(t, func(o *Options) { o.Clock = func() time.Time { return now } })

	h, err := store.SaveIndex(ctx, pairindex.New(), Meta{Columns: 2})
	require.NoError(t, err)
	assert.Equal(t, "index-20261019T120000.000000005Z.tsck", h.Name)
	assert.Equal(t, now, h.Created)

	ptr, err := blobstore.ReadAll(ctx, bs, "LATEST-index")
	require.NoError(t, err)
	assert.Equal(t, h.Name, string(ptr))

	latest, err := store.Latest(ctx, KindIndex)
	require.NoError(t, err)
	assert.Equal(t, h.Name, latest)

	_, err = store.Latest(ctx, KindDiffs)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestSave_Validation(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	_, err := store.SaveIndex(ctx, pairindex.New(), Meta{})
	assert.Error(t, err)

	_, err = store.SaveIndex(ctx, pairindex.New(), Meta{Columns: 1, Label: "a/b"})
	assert.ErrorIs(t, err, ErrInvalidLabel)

	_, err = store.Save(ctx, "not a structure", Meta{Columns: 1})
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()
	store, bs := newTestStore(t)

	a, b, _, _ := fixture(t)
	ix, err := pairindex.Build(ctx, a, 0, b)
	require.NoError(t, err)
	h, err := store.SaveIndex(ctx, ix, Meta{Columns: 3, Label: "x"})
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		_, _, err := store.LoadIndex(ctx, "nope.tsck")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("kind mismatch", func(t *testing.T) {
		_, _, err := store.LoadDiffs(ctx, h.Name)
		assert.ErrorIs(t, err, ErrKindMismatch)
	})

	t.Run("invalid magic", func(t *testing.T) {
		require.NoError(t, bs.Put(ctx, "junk.tsck", []byte("definitely not a checkpoint, just some bytes padding it out")))
		_, _, err := store.LoadIndex(ctx, "junk.tsck")
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("payload corruption", func(t *testing.T) {
		data, err := blobstore.ReadAll(ctx, bs, h.Name)
		require.NoError(t, err)
		require.NoError(t, bs.Put(ctx, "copy.tsck", data))
		require.True(t, bs.Corrupt("copy.tsck", len(data)-1))

		_, _, err = store.LoadIndex(ctx, "copy.tsck")
		require.ErrorIs(t, err, ErrChecksumMismatch)
		var cm *ChecksumMismatchError
		require.ErrorAs(t, err, &cm)
		assert.Equal(t, "payload", cm.Section)
	})

	t.Run("truncated", func(t *testing.T) {
		data, err := blobstore.ReadAll(ctx, bs, h.Name)
		require.NoError(t, err)
		require.NoError(t, bs.Put(ctx, "short.tsck", data[:len(data)-3]))
		_, _, err = store.LoadIndex(ctx, "short.tsck")
		assert.ErrorIs(t, err, ErrCorrupt)
	})
}

func TestStatListPrune(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store, bs := newTestStore(t)

	var names []string
	for i := range 4 {
		h, err := store.SaveIndex(ctx, pairindex.New(), Meta{Columns: 2, Created: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
		names = append(names, h.Name)
	}
	_, err := store.SaveDiffs(ctx, diffset.New(), Meta{Columns: 2, Label: "d"})
	require.NoError(t, err)

	st, err := store.Stat(ctx, names[2])
	require.NoError(t, err)
	assert.Equal(t, base.Add(2*time.Hour), st.Created)
	assert.Equal(t, KindIndex, st.Kind)

	all, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.NotContains(t, all, "LATEST-index")

	// Point LATEST at the oldest: it survives pruning.
	require.NoError(t, bs.Put(ctx, "LATEST-index", []byte(names[0])))
	deleted, err := store.Prune(ctx, KindIndex, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{names[1]}, deleted)

	left, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{names[0], names[2], names[3], "diffs-d.tsck"}, left)
}

func TestIndexOrBuild(t *testing.T) {
	ctx := context.Background()
	a, b, c, target := fixture(t)
	want := Meta{Columns: 3, Fingerprint: row.Fingerprint(target, a, b, c)}

	builds := 0
	build := func(ctx context.Context) (*pairindex.Index, error) {
		builds++
		return pairindex.Build(ctx, a, 0, b)
	}

	var logs bytes.Buffer
	store, bs := newTestStore(t, func(o *Options) {
		o.Logger = slog.New(slog.NewTextHandler(&logs, nil))
	})

	t.Run("no name builds", func(t *testing.T) {
		_, resumed, err := store.IndexOrBuild(ctx, "", want, build)
		require.NoError(t, err)
		assert.False(t, resumed)
		assert.Equal(t, 1, builds)
	})

	t.Run("missing latest builds", func(t *testing.T) {
		_, resumed, err := store.IndexOrBuild(ctx, LatestName, want, build)
		require.NoError(t, err)
		assert.False(t, resumed)
		assert.Equal(t, 2, builds)
		assert.Contains(t, logs.String(), "checkpoint unusable")
	})

	ix, err := build(ctx)
	require.NoError(t, err)
	_, err = store.SaveIndex(ctx, ix, want)
	require.NoError(t, err)
	builds = 0

	t.Run("resumes", func(t *testing.T) {
		got, resumed, err := store.IndexOrBuild(ctx, LatestName, want, build)
		require.NoError(t, err)
		assert.True(t, resumed)
		assert.Zero(t, builds)
		assert.Equal(t, indexContents(ix), indexContents(got))
	})

	t.Run("fingerprint mismatch rebuilds", func(t *testing.T) {
		other := want
		other.Fingerprint++
		_, resumed, err := store.IndexOrBuild(ctx, LatestName, other, build)
		require.NoError(t, err)
		assert.False(t, resumed)
		assert.Equal(t, 1, builds)
		assert.Contains(t, logs.String(), ErrFingerprintMismatch.Error())
	})

	t.Run("corrupt rebuilds", func(t *testing.T) {
		name, err := store.Latest(ctx, KindIndex)
		require.NoError(t, err)
		require.True(t, bs.Corrupt(name, 60))
		_, resumed, err := store.IndexOrBuild(ctx, LatestName, want, build)
		require.NoError(t, err)
		assert.False(t, resumed)
		assert.Equal(t, 2, builds)
	})

	t.Run("build error propagates", func(t *testing.T) {
		boom := errors.New("boom")
		_, _, err := store.IndexOrBuild(ctx, "", want, func(context.Context) (*pairindex.Index, error) {
			return nil, boom
		})
		assert.ErrorIs(t, err, boom)
	})

	t.Run("canceled does not build", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		builds = 0
		_, _, err := store.IndexOrBuild(cctx, "missing-label", want, build)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, builds)
	})
}

func TestDiffsOrBuild(t *testing.T) {
	ctx := context.Background()
	_, _, c, target := fixture(t)
	want := Meta{Columns: 3, Fingerprint: row.Fingerprint(target, c)}
	build := func(ctx context.Context) (*diffset.Set, error) {
		return diffset.Build(ctx, c, 0, target)
	}

	store, _ := newTestStore(t)
	d, resumed, err := store.DiffsOrBuild(ctx, LatestName, want, build)
	require.NoError(t, err)
	assert.False(t, resumed)

	_, err = store.SaveDiffs(ctx, d, want)
	require.NoError(t, err)

	got, resumed, err := store.DiffsOrBuild(ctx, LatestName, want, build)
	require.NoError(t, err)
	assert.True(t, resumed)
	assert.Equal(t, diffsContents(d), diffsContents(got))
}

func TestLocalStoreWithIOLimit(t *testing.T) {
	ctx := context.Background()
	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 1 << 20})
	store := NewStore(blobstore.NewLocalStore(t.TempDir()), func(o *Options) {
		o.Resource = rc
		o.Compression = CompressionLZ4
	})

	a, b, _, _ := fixture(t)
	ix, err := pairindex.Build(ctx, a, 0, b)
	require.NoError(t, err)

	h, err := store.SaveIndex(ctx, ix, Meta{Columns: 3, Label: "local"})
	require.NoError(t, err)
	got, _, err := store.LoadIndex(ctx, h.Name)
	require.NoError(t, err)
	assert.Equal(t, indexContents(ix), indexContents(got))
}

func TestSave_FailedWriteKeepsPreviousCheckpoint(t *testing.T) {
	ctx := context.Background()
	ffs := ifs.NewFaultyFS(nil)
	store := NewStore(blobstore.NewLocalStore(t.TempDir(), blobstore.WithFileSystem(ffs)))

	a, b, _, _ := fixture(t)
	ix, err := pairindex.Build(ctx, a, 0, b)
	require.NoError(t, err)

	good, err := store.SaveIndex(ctx, ix, Meta{Columns: 3, Label: "good"})
	require.NoError(t, err)

	ffs.AddRule("index-bad", ifs.Fault{FailAfterBytes: 8})
	_, err = store.SaveIndex(ctx, ix, Meta{Columns: 3, Label: "bad"})
	require.ErrorIs(t, err, ifs.ErrInjected)

	ffs.AddRule("index-worse", ifs.Fault{FailAfterBytes: -1, FailOnRename: true})
	_, err = store.SaveIndex(ctx, ix, Meta{Columns: 3, Label: "worse"})
	require.ErrorIs(t, err, ifs.ErrInjected)

	names, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{good.Name}, names)

	_, h, err := store.LoadIndex(ctx, LatestName)
	require.NoError(t, err)
	assert.Equal(t, good.Name, h.Name)
}
