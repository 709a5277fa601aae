package catalog

import (
	"testing"

	"songcatalog/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRegionCodes(t *testing.T) {
	assert.Equal(t, []string{"ar", "mx"}, NormalizeRegionCodes([]string{" AR", "mx", "", "  ", "Ar", "MX "}))
	assert.Empty(t, NormalizeRegionCodes(nil))
	assert.Equal(t, []string{"AR", "MX"}, UpperCodes([]string{"ar", "mx"}))
}

func TestEnsureRegionFindsCaseInsensitively(t *testing.T) {
	av := model.DefaultAvailability()

	entry := EnsureRegion(&av, "global")
	assert.Equal(t, "GLOBAL", entry.Code)
	require.Len(t, av.Regions, 1)

	entry = EnsureRegion(&av, "ar")
	assert.Equal(t, model.RegionEntry{Code: "AR", Allowed: true, Status: model.RegionPublished}, *entry)
	require.Len(t, av.Regions, 2)

	assert.Equal(t, 1, FindRegion(av, "Ar"))
	assert.Equal(t, -1, FindRegion(av, "mx"))
	assert.Equal(t, -1, FindRegion(av, ""))
}

func TestResolveRegionEntryFallsBackToGlobal(t *testing.T) {
	av := model.Availability{Regions: []model.RegionEntry{
		{Code: "global", Allowed: true, Status: model.RegionPublished},
		{Code: "AR", Allowed: false, Status: model.RegionRegionBlocked},
	}}

	entry, ok := ResolveRegionEntry(av, "ar")
	require.True(t, ok)
	assert.Equal(t, "AR", entry.Code)

	entry, ok = ResolveRegionEntry(av, "BR")
	require.True(t, ok)
	assert.Equal(t, "global", entry.Code)

	_, ok = ResolveRegionEntry(model.Availability{Regions: []model.RegionEntry{{Code: "AR"}}}, "br")
	assert.False(t, ok)
}

func TestEnsureDefaultRegionSeedsEmptyAvailability(t *testing.T) {
	var av model.Availability
	EnsureDefaultRegion(&av)
	assert.Equal(t, model.DefaultAvailability(), av)

	av = model.Availability{Policy: "custom", Regions: []model.RegionEntry{{Code: "AR", Status: model.RegionScheduled, Allowed: true}}}
	EnsureDefaultRegion(&av)
	assert.Equal(t, "custom", av.Policy)
	assert.Len(t, av.Regions, 1)
}

func TestRegionStatusFor(t *testing.T) {
	assert.Equal(t, model.RegionAdminBlocked, RegionStatusFor(model.StatusBlocked))
	assert.Equal(t, model.RegionRegionBlocked, RegionStatusFor(model.StatusRegionBlocked))
	assert.Equal(t, model.RegionScheduled, RegionStatusFor(model.StatusScheduled))
	assert.Equal(t, model.RegionPublished, RegionStatusFor(model.StatusPublished))
}
