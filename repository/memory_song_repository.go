package repository

import (
	"context"
	"math/rand"
	"sort"
	"strings"
	"sync"

	"songcatalog/model"
)

// memorySongRepository 内存实现，用于 STORE_DRIVER=memory 和测试
type memorySongRepository struct {
	mu    sync.RWMutex
	songs map[string]*model.Song
}

// NewMemorySongRepository 创建内存歌曲仓库
func NewMemorySongRepository() SongRepository {
	return &memorySongRepository{songs: make(map[string]*model.Song)}
}

func (r *memorySongRepository) Create(ctx context.Context, song *model.Song) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.songs[song.ID]; exists {
		return ErrDuplicateID
	}
	if song.Version == 0 {
		song.Version = 1
	}
	r.songs[song.ID] = song.Clone()
	return nil
}

func (r *memorySongRepository) GetByID(ctx context.Context, id string) (*model.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	song, ok := r.songs[id]
	if !ok {
		return nil, nil
	}
	out := song.Clone()
	out.Heal()
	return out, nil
}

func (r *memorySongRepository) Save(ctx context.Context, song *model.Song) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.songs[song.ID]
	if !ok || stored.Version != song.Version {
		return ErrStaleVersion
	}
	song.Version++
	r.songs[song.ID] = song.Clone()
	return nil
}

func (r *memorySongRepository) List(ctx context.Context, filter SongFilter) ([]*model.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q := strings.ToLower(strings.TrimSpace(filter.Query))

	r.mu.RLock()
	out := make([]*model.Song, 0, len(r.songs))
	for _, song := range r.songs {
		if q != "" &&
			!strings.Contains(strings.ToLower(song.Title), q) &&
			!strings.Contains(strings.ToLower(song.ArtistNames()), q) {
			continue
		}
		if filter.HasVideo != nil && song.HasVideo != *filter.HasVideo {
			continue
		}
		if filter.From != nil && song.CreatedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && song.CreatedAt.After(*filter.To) {
			continue
		}
		c := song.Clone()
		c.Heal()
		out = append(out, c)
	}
	r.mu.RUnlock()

	if filter.Sort == SortTitle {
		sortByTitle(out)
	} else {
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].ID < out[j].ID
			}
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	}
	return out, nil
}

func (r *memorySongRepository) SearchByTitle(ctx context.Context, q string) ([]*model.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	needle := strings.ToLower(strings.TrimSpace(q))

	r.mu.RLock()
	var out []*model.Song
	for _, song := range r.songs {
		if strings.Contains(strings.ToLower(song.Title), needle) {
			c := song.Clone()
			c.Heal()
			out = append(out, c)
		}
	}
	r.mu.RUnlock()

	sortByTitle(out)
	return out, nil
}

func (r *memorySongRepository) Random(ctx context.Context, limit int) ([]*model.Song, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	all := make([]*model.Song, 0, len(r.songs))
	for _, song := range r.songs {
		c := song.Clone()
		c.Heal()
		all = append(all, c)
	}
	r.mu.RUnlock()

	rand.Shuffle(len(all), func(i, j int) { all[i], all[j] = all[j], all[i] })
	if limit >= 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func sortByTitle(songs []*model.Song) {
	sort.SliceStable(songs, func(i, j int) bool {
		ti, tj := strings.ToLower(songs[i].Title), strings.ToLower(songs[j].Title)
		if ti == tj {
			return songs[i].ID < songs[j].ID
		}
		return ti < tj
	})
}
