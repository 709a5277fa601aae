package storage

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func put(t *testing.T, s *MemoryStore, key, body string) {
	t.Helper()
	require.NoError(t, s.Put(context.Background(), key, strings.NewReader(body), int64(len(body)), ContentTypeFor(key)))
}

func TestMemoryStoreRanges(t *testing.T) {
	s := NewMemoryStore()
	put(t, s, "songs/a.ogg", "0123456789")
	ctx := context.Background()

	read := func(offset, length int64) string {
		rc, err := s.Open(ctx, "songs/a.ogg", offset, length)
		require.NoError(t, err)
		defer rc.Close()
		b, err := io.ReadAll(rc)
		require.NoError(t, err)
		return string(b)
	}

	assert.Equal(t, "0123456789", read(0, -1))
	assert.Equal(t, "234", read(2, 3))
	assert.Equal(t, "789", read(7, 100))
	assert.Equal(t, "56789", read(5, -1))

	info, err := s.Stat(ctx, "songs/a.ogg")
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)
	assert.Equal(t, "audio/ogg", info.ContentType)

	_, err = s.Stat(ctx, "songs/missing.ogg")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	_, err = s.Open(ctx, "songs/missing.ogg", 0, -1)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestMemoryStoreRejectsShortUpload(t *testing.T) {
	s := NewMemoryStore()
	err := s.Put(context.Background(), "k", strings.NewReader("abc"), 5, "text/plain")
	assert.Error(t, err)
}

func TestMemoryStoreListAndDelete(t *testing.T) {
	s := NewMemoryStore()
	put(t, s, "songs/s1/video/playlist.m3u8", "#EXTM3U")
	put(t, s, "songs/s1/video/segment_000.ts", "ts")
	put(t, s, "songs/s1.ogg", "ogg")
	ctx := context.Background()

	objs, err := s.List(ctx, SongVideoPrefix("s1"))
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "songs/s1/video/playlist.m3u8", objs[0].Key)

	require.NoError(t, s.Delete(ctx, "songs/s1/video/segment_000.ts"))
	require.NoError(t, s.Delete(ctx, "songs/s1/video/segment_000.ts"), "missing key is not an error")
	objs, err = s.List(ctx, SongVideoPrefix("s1"))
	require.NoError(t, err)
	require.Len(t, objs, 1)

	put(t, s, "songs/s1/video/segment_000.ts", "ts")
	n, err := s.DeletePrefix(ctx, SongVideoPrefix("s1"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	objs, err = s.List(ctx, "songs/")
	require.NoError(t, err)
	assert.Len(t, objs, 1)
}

func TestKeysAndContentTypes(t *testing.T) {
	assert.Equal(t, "songs/abc.ogg", SongAudioKey("abc"))
	assert.Equal(t, "songs/abc/video/playlist.m3u8", SongVideoKey("abc", "playlist.m3u8"))
	assert.Equal(t, "application/x-mpegURL", ContentTypeFor("x/playlist.M3U8"))
	assert.Equal(t, "video/mp2t", ContentTypeFor("segment_001.ts"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("README"))
}

func TestReport(t *testing.T) {
	s := NewMemoryStore()
	put(t, s, "songs/s1.ogg", strings.Repeat("x", 2048))
	put(t, s, "songs/s1/video/playlist.m3u8", "#EXTM3U")

	stats, objects, err := CollectStats(context.Background(), s, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalObjects)
	assert.Equal(t, int64(2055), stats.TotalSize)
	assert.Equal(t, int64(1), stats.TypeCounts["ogg"])
	assert.Equal(t, int64(1), stats.TypeCounts["m3u8"])

	var buf bytes.Buffer
	WriteStats(&buf, stats)
	assert.Contains(t, buf.String(), "2.1 kB")

	buf.Reset()
	WriteTree(&buf, objects)
	assert.Equal(t, "songs/\n  s1.ogg (2.0 kB)\n  s1/\n    video/\n      playlist.m3u8 (7 B)\n", buf.String())
}
