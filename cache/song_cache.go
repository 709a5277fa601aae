package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"songcatalog/logger"
	"songcatalog/model"
	"songcatalog/repository"

	"github.com/go-redis/redis/v8"
)

// KV 缓存用到的 Redis 命令子集
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// SongKey 歌曲缓存键
func SongKey(id string) string {
	return fmt.Sprintf("catalog:song:%s", id)
}

// fenceKey 记录最近一次成功保存的版本号，读路径据此丢弃旧快照
func fenceKey(id string) string {
	return fmt.Sprintf("catalog:song:%s:fence", id)
}

// cachedSongRepository 在仓库前加一层 Redis 读缓存，Save 成功后删除缓存
type cachedSongRepository struct {
	repository.SongRepository
	kv  KV
	ttl time.Duration
}

// NewCachedSongRepository wraps repo with a read-through cache for GetByID.
// Cache failures fall back to repo and are only logged.
func NewCachedSongRepository(repo repository.SongRepository, kv KV, ttl time.Duration) repository.SongRepository {
	return &cachedSongRepository{SongRepository: repo, kv: kv, ttl: ttl}
}

func (r *cachedSongRepository) GetByID(ctx context.Context, id string) (*model.Song, error) {
	key := SongKey(id)
	data, err := r.kv.Get(ctx, key).Bytes()
	if err == nil {
		if song, err := decodeCached(data); err == nil {
			return song, nil
		}
		logger.Warn("[Cache] 歌曲缓存解析失败", logger.String("songId", id))
	} else if !errors.Is(err, redis.Nil) {
		logger.Warn("[Cache] 读取歌曲缓存失败", logger.String("songId", id), logger.ErrorField(err))
	}

	song, err := r.SongRepository.GetByID(ctx, id)
	if err != nil || song == nil {
		return song, err
	}
	r.store(ctx, song)
	return song, nil
}

// Save 先写栅栏再删缓存。并发读若拿到保存前的快照，写入前后都会对照栅栏，
// 旧版本不会留在缓存里。
func (r *cachedSongRepository) Save(ctx context.Context, song *model.Song) error {
	err := r.SongRepository.Save(ctx, song)
	if err == nil {
		if ferr := r.kv.Set(ctx, fenceKey(song.ID), song.Version, r.ttl).Err(); ferr != nil {
			logger.Warn("[Cache] 写入版本栅栏失败", logger.String("songId", song.ID), logger.ErrorField(ferr))
		}
	}
	// 冲突时缓存可能已过期，同样需要删除
	r.invalidate(ctx, song.ID)
	return err
}

func (r *cachedSongRepository) store(ctx context.Context, song *model.Song) {
	if r.superseded(ctx, song) {
		return
	}
	data, err := cachedJSON(song)
	if err != nil {
		return
	}
	if err := r.kv.Set(ctx, SongKey(song.ID), data, r.ttl).Err(); err != nil {
		logger.Warn("[Cache] 写入歌曲缓存失败", logger.String("songId", song.ID), logger.ErrorField(err))
		return
	}
	// Set 与并发 Save 交错时再核对一次
	if r.superseded(ctx, song) {
		r.invalidate(ctx, song.ID)
	}
}

// superseded 栅栏版本高于 song 时返回 true；栅栏缺失或读取失败按未过期处理
func (r *cachedSongRepository) superseded(ctx context.Context, song *model.Song) bool {
	raw, err := r.kv.Get(ctx, fenceKey(song.ID)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn("[Cache] 读取版本栅栏失败", logger.String("songId", song.ID), logger.ErrorField(err))
		}
		return false
	}
	fence, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	if fence > song.Version {
		logger.Debug("[Cache] 快照已被新版本取代，跳过缓存",
			logger.String("songId", song.ID), logger.Int64("version", song.Version), logger.Int64("fence", fence))
		return true
	}
	return false
}

func (r *cachedSongRepository) invalidate(ctx context.Context, id string) {
	if err := r.kv.Del(ctx, SongKey(id)).Err(); err != nil {
		logger.Warn("[Cache] 删除歌曲缓存失败", logger.String("songId", id), logger.ErrorField(err))
	}
}

type songAlias model.Song

// cachedSong keeps the file path, which the API projection hides.
type cachedSong struct {
	*songAlias
	FilePath string `json:"filePath"`
}

func cachedJSON(song *model.Song) ([]byte, error) {
	return json.Marshal(cachedSong{songAlias: (*songAlias)(song), FilePath: song.FilePath})
}

func decodeCached(data []byte) (*model.Song, error) {
	song := &model.Song{}
	wrapped := cachedSong{songAlias: (*songAlias)(song)}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	song.FilePath = wrapped.FilePath
	song.Heal()
	return song, nil
}
