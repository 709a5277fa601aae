package catalog

import (
	"strings"

	"songcatalog/model"
)

// NormalizeRegionCodes trims and lowercases codes, drops empties and
// de-duplicates while keeping first-seen order.
func NormalizeRegionCodes(codes []string) []string {
	seen := make(map[string]bool, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		c := strings.ToLower(strings.TrimSpace(code))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// UpperCodes returns the display form of normalized codes.
func UpperCodes(codes []string) []string {
	out := make([]string, len(codes))
	for i, c := range codes {
		out[i] = model.CanonicalRegion(c)
	}
	return out
}

// EnsureDefaultRegion seeds a published global entry when regions is empty.
func EnsureDefaultRegion(av *model.Availability) {
	if av.Policy == "" {
		av.Policy = model.DefaultPolicy
	}
	if len(av.Regions) == 0 {
		av.Regions = model.DefaultAvailability().Regions
	}
}

// FindRegion returns the index of the entry matching code case-insensitively, or -1.
func FindRegion(av model.Availability, code string) int {
	want := model.CanonicalRegion(code)
	if want == "" {
		return -1
	}
	for i, entry := range av.Regions {
		if model.CanonicalRegion(entry.Code) == want {
			return i
		}
	}
	return -1
}

// EnsureRegion returns the entry for code, appending a published one if absent.
func EnsureRegion(av *model.Availability, code string) *model.RegionEntry {
	if i := FindRegion(*av, code); i >= 0 {
		return &av.Regions[i]
	}
	av.Regions = append(av.Regions, model.RegionEntry{
		Code:    model.CanonicalRegion(code),
		Allowed: true,
		Status:  model.RegionPublished,
	})
	return &av.Regions[len(av.Regions)-1]
}

// ResolveRegionEntry finds the entry for region, falling back to the global entry.
func ResolveRegionEntry(av model.Availability, region string) (model.RegionEntry, bool) {
	if i := FindRegion(av, region); i >= 0 {
		return av.Regions[i], true
	}
	if i := FindRegion(av, model.GlobalRegion); i >= 0 {
		return av.Regions[i], true
	}
	return model.RegionEntry{}, false
}

// RegionStatusFor maps a base status onto the region status it implies.
func RegionStatusFor(status model.BaseStatus) model.RegionStatus {
	switch status {
	case model.StatusBlocked:
		return model.RegionAdminBlocked
	case model.StatusRegionBlocked:
		return model.RegionRegionBlocked
	case model.StatusScheduled:
		return model.RegionScheduled
	default:
		return model.RegionPublished
	}
}
