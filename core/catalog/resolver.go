package catalog

import "songcatalog/model"

// Resolve combines base status, region overrides and the admin block into one
// effective status. First match wins: admin block, region block, scheduled,
// published.
func Resolve(base model.BaseStatus, regions []model.RegionEntry, block *model.AdminBlock) model.EffectiveStatus {
	if block != nil || base == model.StatusBlocked || anyRegion(regions, model.RegionAdminBlocked) {
		return model.EffectiveAdminBlocked
	}
	if anyRegion(regions, model.RegionRegionBlocked) {
		return model.EffectiveRegionBlocked
	}
	if base == model.StatusScheduled || anyRegion(regions, model.RegionScheduled) {
		return model.EffectiveScheduled
	}
	return model.EffectivePublished
}

// EffectiveStatusOf resolves the whole song.
func EffectiveStatusOf(song *model.Song) model.EffectiveStatus {
	return Resolve(song.Status, song.Availability.Regions, song.AdminBlock)
}

// IsRegionAvailable answers whether the item can be played in region right
// now. An empty region means no region context, which consults the global entry.
func IsRegionAvailable(base model.BaseStatus, av model.Availability, block *model.AdminBlock, region string) bool {
	if base == model.StatusBlocked || block.Covers(region) {
		return false
	}
	entry, ok := ResolveRegionEntry(av, region)
	if !ok {
		return base != model.StatusScheduled
	}
	if entry.Status == model.RegionAdminBlocked || entry.Status == model.RegionRegionBlocked {
		return false
	}
	if base == model.StatusScheduled {
		return false
	}
	return entry.Allowed
}

// IsAvailableIn is IsRegionAvailable over a song.
func IsAvailableIn(song *model.Song, region string) bool {
	return IsRegionAvailable(song.Status, song.Availability, song.AdminBlock, region)
}

// AvailabilityView returns the region list with the admin block overlaid.
func AvailabilityView(av model.Availability, block *model.AdminBlock) []model.RegionEntry {
	out := make([]model.RegionEntry, len(av.Regions))
	for i, entry := range av.Regions {
		if block.Covers(entry.Code) {
			entry.Allowed = false
			entry.Status = model.RegionAdminBlocked
		}
		out[i] = entry
	}
	return out
}

func anyRegion(regions []model.RegionEntry, status model.RegionStatus) bool {
	for _, r := range regions {
		if r.Status == status {
			return true
		}
	}
	return false
}
