package catalog

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"songcatalog/model"
	"songcatalog/repository"
)

const (
	DefaultPerPage = 25
	MaxPerPage     = 100

	KindSong       = "song"
	KindCollection = "collection"

	// below this size resolution runs inline
	parallelResolveThreshold = 512
)

// ListQuery 后台目录列表的查询参数
type ListQuery struct {
	Q        string
	Type     string
	Status   string
	HasVideo string // yes | no
	Region   string
	From     string
	To       string
	Sort     string // recent | title
	Page     int
	PerPage  int
}

// ListItem 目录列表行
type ListItem struct {
	Type            string                `json:"type"`
	ID              string                `json:"id"`
	Title           string                `json:"title"`
	Artist          string                `json:"artist"`
	Collection      string                `json:"collection"`
	ReleaseDate     *time.Time            `json:"releaseDate,omitempty"`
	EffectiveStatus model.EffectiveStatus `json:"effectiveStatus"`
	HasVideo        bool                  `json:"hasVideo"`
	Regions         []model.RegionEntry   `json:"regions"`
}

// ListResult 分页结果
type ListResult struct {
	Items   []ListItem `json:"items"`
	Total   int        `json:"total"`
	Page    int        `json:"page"`
	PerPage int        `json:"perPage"`
}

// ReleaseDateSource looks up release dates for album ids. Missing ids are
// simply absent from the result.
type ReleaseDateSource interface {
	ReleaseDates(ctx context.Context, albumIDs []string) map[string]time.Time
}

// SetReleaseDates enables release date enrichment for list rows.
func (s *Service) SetReleaseDates(src ReleaseDateSource) {
	s.releases = src
}

// ListCatalog filters, resolves and pages the catalog.
func (s *Service) ListCatalog(ctx context.Context, q ListQuery) (*ListResult, error) {
	page, perPage, err := pageBounds(q.Page, q.PerPage)
	if err != nil {
		return nil, err
	}
	result := &ListResult{Items: []ListItem{}, Page: page, PerPage: perPage}

	switch strings.ToLower(strings.TrimSpace(q.Type)) {
	case "", KindSong:
	case KindCollection:
		return result, nil
	default:
		return nil, fmt.Errorf("%w: unsupported catalog type %q", ErrInvalidArgument, q.Type)
	}

	status := model.EffectiveStatus(q.Status)
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, q.Status)
	}

	filter := repository.SongFilter{Query: q.Q, Sort: repository.SortRecent}
	switch q.HasVideo {
	case "":
	case "yes", "no":
		v := q.HasVideo == "yes"
		filter.HasVideo = &v
	default:
		return nil, fmt.Errorf("%w: hasVideo must be yes or no", ErrInvalidArgument)
	}
	switch q.Sort {
	case "", repository.SortRecent:
	case repository.SortTitle:
		filter.Sort = repository.SortTitle
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", ErrInvalidArgument, q.Sort)
	}
	if t, ok := ParseDate(q.From); ok {
		filter.From = &t
	}
	if t, ok := ParseDate(q.To); ok {
		filter.To = &t
	}

	songs, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}

	statuses := resolveAll(songs)
	matched := make([]int, 0, len(songs))
	for i, song := range songs {
		if status != "" && statuses[i] != status {
			continue
		}
		if q.Region != "" && !regionVisible(song, q.Region) {
			continue
		}
		matched = append(matched, i)
	}

	result.Total = len(matched)
	start := (page - 1) * perPage
	if start >= len(matched) {
		return result, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}

	window := matched[start:end]
	releases := s.lookupReleases(ctx, songs, window)
	for _, i := range window {
		song := songs[i]
		item := ListItem{
			Type:            KindSong,
			ID:              song.ID,
			Title:           song.Title,
			Artist:          song.ArtistNames(),
			Collection:      song.AlbumID,
			ReleaseDate:     song.ReleaseDate,
			EffectiveStatus: statuses[i],
			HasVideo:        song.HasVideo,
			Regions:         AvailabilityView(song.Availability, song.AdminBlock),
		}
		if item.Artist == "" {
			item.Artist = "Unknown artist"
		}
		if item.Collection == "" {
			item.Collection = "Single"
		}
		if item.ReleaseDate == nil {
			if t, ok := releases[song.AlbumID]; ok {
				item.ReleaseDate = &t
			}
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

// GetItem returns the detail projection of one catalog item.
func (s *Service) GetItem(ctx context.Context, kind, id string) (*SongDetail, error) {
	if kind != KindSong {
		return nil, fmt.Errorf("%w: only song catalog entries are available", ErrNotFound)
	}
	song, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := Project(song)
	return &detail, nil
}

func (s *Service) lookupReleases(ctx context.Context, songs []*model.Song, window []int) map[string]time.Time {
	if s.releases == nil {
		return nil
	}
	var ids []string
	for _, i := range window {
		if songs[i].ReleaseDate == nil && songs[i].AlbumID != "" {
			ids = append(ids, songs[i].AlbumID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	return s.releases.ReleaseDates(ctx, ids)
}

// resolveAll computes every song's effective status. Resolution is pure,
// so large lists are split across goroutines.
func resolveAll(songs []*model.Song) []model.EffectiveStatus {
	out := make([]model.EffectiveStatus, len(songs))
	if len(songs) < parallelResolveThreshold {
		for i, song := range songs {
			out[i] = EffectiveStatusOf(song)
		}
		return out
	}

	workers := runtime.NumCPU()
	chunk := (len(songs) + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < len(songs); start += chunk {
		end := start + chunk
		if end > len(songs) {
			end = len(songs)
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			for i := lo; i < hi; i++ {
				out[i] = EffectiveStatusOf(songs[i])
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

func regionVisible(song *model.Song, region string) bool {
	view := model.Availability{Regions: AvailabilityView(song.Availability, song.AdminBlock)}
	entry, ok := ResolveRegionEntry(view, region)
	return ok && entry.Allowed
}

func pageBounds(page, perPage int) (int, int, error) {
	if page < 0 || perPage < 0 {
		return 0, 0, fmt.Errorf("%w: page and perPage must be positive", ErrInvalidArgument)
	}
	if page == 0 {
		page = 1
	}
	if perPage == 0 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		return 0, 0, fmt.Errorf("%w: perPage must not exceed %d", ErrInvalidArgument, MaxPerPage)
	}
	return page, perPage, nil
}

// ParseDate accepts RFC3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, true
	}
	return time.Time{}, false
}
