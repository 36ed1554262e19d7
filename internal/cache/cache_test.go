package cache

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T, path string) *BadgerStore {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s, err := NewBadgerStore(path, logger)
	require.NoError(t, err, "Failed to open test cache")
	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})
	return s
}

func TestKey_Stable(t *testing.T) {
	a := Key("resolver.Resolve", "https://vm.tiktok.com/ABC123")
	b := Key("resolver.Resolve", "https://vm.tiktok.com/ABC123")
	c := Key("resolver.Resolve", "https://vm.tiktok.com/XYZ")
	d := Key("enrich.QuickVids", "https://vm.tiktok.com/ABC123")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Contains(t, a, "resolver.Resolve:")
}

func TestBadgerStore_SetGetDelete(t *testing.T) {
	s := setupStore(t, "")
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Hour))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, s.Delete(ctx, "k"))
	_, ok, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	s.RunGC()
}

func TestBadgerStore_OnDisk(t *testing.T) {
	s := setupStore(t, t.TempDir())
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
}

type record struct {
	Title string
	Likes int64
}

func TestFetch_Memoizes(t *testing.T) {
	s := setupStore(t, "")
	ctx := context.Background()
	calls := 0
	fn := func(context.Context) (record, error) {
		calls++
		return record{Title: "t", Likes: 1500}, nil
	}

	first, err := Fetch(ctx, s, Key("test", 1), time.Hour, fn)
	require.NoError(t, err)
	second, err := Fetch(ctx, s, Key("test", 1), time.Hour, fn)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)
}

func TestFetch_ErrorsNotCached(t *testing.T) {
	s := setupStore(t, "")
	ctx := context.Background()
	calls := 0
	fn := func(context.Context) (record, error) {
		calls++
		return record{}, errors.New("upstream down")
	}

	_, err := Fetch(ctx, s, "k", time.Hour, fn)
	assert.Error(t, err)
	_, err = Fetch(ctx, s, "k", time.Hour, fn)
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}

func TestFetch_NopStore(t *testing.T) {
	calls := 0
	fn := func(context.Context) (int, error) {
		calls++
		return 7, nil
	}
	for i := 0; i < 2; i++ {
		v, err := Fetch[int](context.Background(), Nop{}, "k", time.Hour, fn)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	}
	assert.Equal(t, 2, calls)
}

func TestJSONHelpers(t *testing.T) {
	s := setupStore(t, "")
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, s, "r", record{Title: "x"}, time.Hour))
	var got record
	ok, err := GetJSON(ctx, s, "r", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "x", got.Title)

	ok, err = GetJSON(ctx, s, "absent", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
