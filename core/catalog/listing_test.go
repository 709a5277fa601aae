package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"songcatalog/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticReleases map[string]time.Time

func (s staticReleases) ReleaseDates(_ context.Context, ids []string) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, id := range ids {
		if t, ok := s[id]; ok {
			out[id] = t
		}
	}
	return out
}

func seedCatalog(t *testing.T) *Service {
	t.Helper()
	published := newSong("p1")
	published.Title = "Alpha"
	published.CreatedAt = fixedNow.Add(-3 * time.Hour)
	published.HasVideo = true

	blocked := newSong("b1")
	blocked.Title = "bravo"
	blocked.CreatedAt = fixedNow.Add(-2 * time.Hour)
	blocked.Status = model.StatusBlocked
	blocked.AlbumID = "alb-1"
	blocked.Availability.Regions[0].Set(model.RegionAdminBlocked)

	regional := newSong("r1", region("GLOBAL", model.RegionPublished), region("AR", model.RegionRegionBlocked))
	regional.Title = "Charlie"
	regional.Artists = model.ArtistList{{ID: "x", Name: "Xavier"}, {ID: "y", Name: "Yolanda"}}
	regional.CreatedAt = fixedNow.Add(-1 * time.Hour)

	svc, _ := newTestService(t, published, blocked, regional)
	return svc
}

func ids(items []ListItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestListCatalogDefaults(t *testing.T) {
	svc := seedCatalog(t)

	res, err := svc.ListCatalog(context.Background(), ListQuery{})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Total)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, DefaultPerPage, res.PerPage)
	assert.Equal(t, []string{"r1", "b1", "p1"}, ids(res.Items))

	first := res.Items[0]
	assert.Equal(t, "song", first.Type)
	assert.Equal(t, "Xavier, Yolanda", first.Artist)
	assert.Equal(t, "Single", first.Collection)
	assert.Equal(t, model.EffectiveRegionBlocked, first.EffectiveStatus)
	assert.Equal(t, "alb-1", res.Items[1].Collection)
}

func TestListCatalogFilters(t *testing.T) {
	tests := []struct {
		name  string
		query ListQuery
		want  []string
	}{
		{"status", ListQuery{Status: string(model.EffectiveAdminBlocked)}, []string{"b1"}},
		{"video yes", ListQuery{HasVideo: "yes"}, []string{"p1"}},
		{"video no", ListQuery{HasVideo: "no"}, []string{"r1", "b1"}},
		{"text on title", ListQuery{Q: "BRAV"}, []string{"b1"}},
		{"text on artist", ListQuery{Q: "yolanda"}, []string{"r1"}},
		{"region blocked hidden", ListQuery{Region: "ar"}, []string{"p1"}},
		{"region falls back to global", ListQuery{Region: "br"}, []string{"r1", "p1"}},
		{"title sort", ListQuery{Sort: "title"}, []string{"p1", "b1", "r1"}},
		{"from", ListQuery{From: fixedNow.Add(-150 * time.Minute).Format(time.RFC3339)}, []string{"r1", "b1"}},
		{"bad from is ignored", ListQuery{From: "not-a-date"}, []string{"r1", "b1", "p1"}},
		{"collection type", ListQuery{Type: "collection"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := seedCatalog(t)
			res, err := svc.ListCatalog(context.Background(), tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(res.Items))
			assert.Equal(t, len(tt.want), res.Total)
		})
	}
}

func TestListCatalogPaging(t *testing.T) {
	var songs []*model.Song
	for i := 0; i < 30; i++ {
		s := newSong(fmt.Sprintf("s%02d", i))
		s.CreatedAt = fixedNow.Add(time.Duration(i) * time.Minute)
		songs = append(songs, s)
	}
	svc, _ := newTestService(t, songs...)

	res, err := svc.ListCatalog(context.Background(), ListQuery{Page: 2, PerPage: 25})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Total)
	assert.Equal(t, []string{"s04", "s03", "s02", "s01", "s00"}, ids(res.Items))

	res, err = svc.ListCatalog(context.Background(), ListQuery{Page: 9})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Total)
	assert.Empty(t, res.Items)
}

func TestListCatalogRejectsBadQueries(t *testing.T) {
	svc := seedCatalog(t)
	for _, q := range []ListQuery{
		{Type: "podcast"},
		{Status: "Gone"},
		{HasVideo: "maybe"},
		{Sort: "random"},
		{PerPage: 101},
		{Page: -1},
	} {
		_, err := svc.ListCatalog(context.Background(), q)
		assert.ErrorIs(t, err, ErrInvalidArgument, "%+v", q)
	}
}

func TestListCatalogEnrichesReleaseDates(t *testing.T) {
	svc := seedCatalog(t)
	release := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)
	svc.SetReleaseDates(staticReleases{"alb-1": release})

	res, err := svc.ListCatalog(context.Background(), ListQuery{Status: string(model.EffectiveAdminBlocked)})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.NotNil(t, res.Items[0].ReleaseDate)
	assert.Equal(t, release, *res.Items[0].ReleaseDate)
}

func TestResolveAllMatchesSequential(t *testing.T) {
	songs := make([]*model.Song, parallelResolveThreshold+37)
	for i := range songs {
		s := newSong(fmt.Sprint(i))
		s.Status = baseStatuses[i%len(baseStatuses)]
		songs[i] = s
	}
	got := resolveAll(songs)
	for i, s := range songs {
		assert.Equal(t, EffectiveStatusOf(s), got[i])
	}
}

func TestGetItem(t *testing.T) {
	svc := seedCatalog(t)

	detail, err := svc.GetItem(context.Background(), KindSong, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.EffectiveAdminBlocked, detail.EffectiveStatus)
	assert.Equal(t, model.DefaultPolicy, detail.Availability.Policy)
	assert.NotNil(t, detail.AuditLog)

	_, err = svc.GetItem(context.Background(), KindCollection, "b1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetItem(context.Background(), KindSong, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2024-06-30")
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC), d)

	_, ok = ParseDate("2024-06-30T10:00:00+02:00")
	assert.True(t, ok)
	_, ok = ParseDate("")
	assert.False(t, ok)
	_, ok = ParseDate("30/06/2024")
	assert.False(t, ok)
}
