package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opencaselaw/harvester/internal/pipeline"
)

func TestLoadAllMissingFileReturnsEmpty(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	records, err := store.LoadAll(context.Background())
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestSaveAllRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	in := []pipeline.Record{
		{URL: "https://cases.test/a", LocalID: "aaa111", Title: "A v B", Year: 2024, SourceCode: "hca"},
		{URL: "https://cases.test/b", LocalID: "bbb222", Title: "C v D", SourceCode: "fca"},
	}
	require.NoError(t, store.SaveAll(ctx, in))

	out, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Equal(t, in, out)

	// No temp file left behind after the atomic swap.
	_, err = os.Stat(filepath.Join(dir, "records.json.tmp"))
	require.True(t, os.IsNotExist(err))
}

func TestSaveAllReplacesWholeSet(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.SaveAll(ctx, []pipeline.Record{
		{URL: "https://cases.test/a", LocalID: "aaa111"},
		{URL: "https://cases.test/b", LocalID: "bbb222"},
	}))
	require.NoError(t, store.SaveAll(ctx, []pipeline.Record{
		{URL: "https://cases.test/c", LocalID: "ccc333"},
	}))

	out, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "ccc333", out[0].LocalID)
}

func TestLoadAllRejectsCorruptDataset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "records.json"), []byte("{not json"), 0o600))

	_, err = store.LoadAll(context.Background())
	require.Error(t, err)
}

func TestSaveBodyAndExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)
	ctx := context.Background()

	rec := pipeline.Record{URL: "https://cases.test/a", LocalID: "aaa111"}
	path, err := store.SaveBody(ctx, rec, "judgment text")
	require.NoError(t, err)
	require.Equal(t, filepath.Join("bodies", "aaa111.txt"), path)
	require.True(t, store.Exists(ctx, path))
	require.False(t, store.Exists(ctx, filepath.Join("bodies", "zzz999.txt")))
	require.False(t, store.Exists(ctx, ""))

	data, err := os.ReadFile(filepath.Join(dir, path))
	require.NoError(t, err)
	require.Equal(t, "judgment text", string(data))
}

func TestSaveBodyRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	rec := pipeline.Record{LocalID: "../../etc/passwd"}
	_, err = store.SaveBody(context.Background(), rec, "nope")
	require.Error(t, err)
}

func TestSaveBodyRequiresLocalID(t *testing.T) {
	t.Parallel()

	store, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveBody(context.Background(), pipeline.Record{}, "text")
	require.Error(t, err)
}
