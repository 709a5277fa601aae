package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   Availability
		want Availability
	}{
		{
			name: "empty gets the global default",
			in:   Availability{},
			want: DefaultAvailability(),
		},
		{
			name: "codes are canonical and later duplicates dropped",
			in: Availability{Policy: "custom", Regions: []RegionEntry{
				{Code: " ar ", Allowed: true, Status: RegionRegionBlocked},
				{Code: "AR", Allowed: true, Status: RegionPublished},
				{Code: "mx", Allowed: false, Status: RegionPublished},
				{Code: "global", Allowed: true, Status: RegionAdminBlocked},
			}},
			want: Availability{Policy: "custom", Regions: []RegionEntry{
				{Code: "AR", Allowed: false, Status: RegionRegionBlocked},
				{Code: "MX", Allowed: true, Status: RegionPublished},
				{Code: "GLOBAL", Allowed: false, Status: RegionAdminBlocked},
			}},
		},
		{
			name: "blank codes dropped and missing status is published",
			in: Availability{Regions: []RegionEntry{
				{Code: "  "},
				{Code: "cl", Allowed: false},
				{Code: "pe", Allowed: false, Status: RegionScheduled},
			}},
			want: Availability{Policy: DefaultPolicy, Regions: []RegionEntry{
				{Code: "CL", Allowed: true, Status: RegionPublished},
				{Code: "PE", Allowed: true, Status: RegionScheduled},
			}},
		},
		{
			name: "only blanks falls back to default",
			in:   Availability{Regions: []RegionEntry{{Code: ""}}},
			want: DefaultAvailability(),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.in.Clone()
			got.Normalize()
			assert.Equal(t, tc.want, got)

			again := got.Clone()
			again.Normalize()
			assert.Equal(t, got, again, "normalize is idempotent")
		})
	}
}

func TestNormalizeLeavesSharedSliceAlone(t *testing.T) {
	regions := []RegionEntry{{Code: "ar", Status: RegionPublished}, {Code: "AR", Status: RegionRegionBlocked}}
	av := Availability{Regions: regions}
	av.Normalize()

	assert.Equal(t, "ar", regions[0].Code)
	assert.Equal(t, RegionRegionBlocked, regions[1].Status)
	assert.Len(t, av.Regions, 1)
}

func TestAvailabilityColumnRoundTrip(t *testing.T) {
	in := Availability{Policy: DefaultPolicy, Regions: []RegionEntry{
		{Code: "GLOBAL", Allowed: true, Status: RegionPublished},
		{Code: "AR", Allowed: false, Status: RegionAdminBlocked},
	}}
	v, err := in.Value()
	require.NoError(t, err)

	var out Availability
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	var fromString Availability
	require.NoError(t, fromString.Scan(string(v.([]byte))))
	assert.Equal(t, in, fromString)

	empty, err := Availability{}.Value()
	require.NoError(t, err)
	assert.JSONEq(t, `{"policy":"","regions":[]}`, string(empty.([]byte)))

	var null Availability
	require.NoError(t, null.Scan([]byte("null")))
	assert.Equal(t, Availability{}, null)
	require.NoError(t, null.Scan(nil))
	assert.Equal(t, Availability{}, null)
}

func TestAuditLogColumnRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 9, 12, 30, 0, 0, time.UTC)
	var log AuditLog
	log.Prepend(AuditEntry{ID: "audit-1", Timestamp: at, Action: ActionBlocked, Actor: "alice",
		Scope: ScopeRegions, Regions: []string{"AR"}, ReasonCode: "legal",
		PreviousState: EffectivePublished, NewState: EffectiveAdminBlocked})
	log.Prepend(AuditEntry{ID: "audit-2", Timestamp: at.Add(time.Hour), Action: ActionUnblocked, Actor: "bob",
		PreviousState: EffectiveAdminBlocked, NewState: EffectivePublished})
	require.Equal(t, "audit-2", log[0].ID, "newest first")

	v, err := log.Value()
	require.NoError(t, err)
	var out AuditLog
	require.NoError(t, out.Scan(v))
	assert.Equal(t, log, out)

	nilValue, err := AuditLog(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", nilValue)

	var empty AuditLog
	require.NoError(t, empty.Scan([]byte("")))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestArtistListColumnRoundTrip(t *testing.T) {
	in := ArtistList{{ID: "a1", Name: "Violeta Parra"}}
	v, err := in.Value()
	require.NoError(t, err)

	var out ArtistList
	require.NoError(t, out.Scan(v))
	assert.Equal(t, in, out)

	var none ArtistList
	require.NoError(t, none.Scan(nil))
	assert.Nil(t, none)
}

func TestAdminBlockCovers(t *testing.T) {
	var none *AdminBlock
	assert.False(t, none.Covers("AR"))

	global := &AdminBlock{Scope: ScopeGlobal}
	assert.True(t, global.Covers("anything"))

	regional := &AdminBlock{Scope: ScopeRegions, Regions: []string{"AR", "mx"}}
	assert.True(t, regional.Covers("ar"))
	assert.True(t, regional.Covers(" MX "))
	assert.False(t, regional.Covers("CL"))
	assert.False(t, regional.Covers(""))
}

func TestNewSongAndHeal(t *testing.T) {
	song := NewSong("s1", "Volver a los 17", nil, time.Now())
	assert.Equal(t, StatusPublished, song.Status)
	assert.Equal(t, int64(1), song.Version)
	assert.Equal(t, DefaultAvailability(), song.Availability)
	assert.NotNil(t, song.AuditLog)

	loaded := &Song{ID: "s2"}
	loaded.Heal()
	assert.Equal(t, StatusPublished, loaded.Status)
	assert.Equal(t, DefaultAvailability(), loaded.Availability)
	assert.NotNil(t, loaded.AuditLog)
}
