package library

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"songcatalog/core/catalog"
	"songcatalog/core/media"
	"songcatalog/logger"
	"songcatalog/model"
	"songcatalog/repository"
	"songcatalog/storage"

	"github.com/google/uuid"
)

const (
	MaxLimit = 100

	// Save 冲突时的重试次数
	saveAttempts = 3
)

// Options 媒体处理参数
type Options struct {
	SegmentTime string // hls_time
	TempDir     string // 为空时使用系统临时目录
}

// Service 曲库上传、查询和元数据维护
type Service struct {
	repo      repository.SongRepository
	store     storage.MediaStore
	processor media.Processor
	pipeline  *media.HLSPipeline
	opts      Options
	now       func() time.Time
}

func NewService(repo repository.SongRepository, store storage.MediaStore, processor media.Processor, pipeline *media.HLSPipeline, opts Options) *Service {
	if opts.SegmentTime == "" {
		opts.SegmentTime = "10"
	}
	return &Service{
		repo:      repo,
		store:     store,
		processor: processor,
		pipeline:  pipeline,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// UploadRequest 上传的音频及其元数据
type UploadRequest struct {
	Title       string
	Artists     []model.Artist
	AlbumID     string
	ReleaseDate *time.Time
	File        io.Reader
	Filename    string
	ContentType string
}

// Upload transcodes the audio to OGG, stores it and creates a published song.
func (s *Service) Upload(ctx context.Context, req UploadRequest) (*model.Song, error) {
	if !strings.HasPrefix(strings.ToLower(req.ContentType), "audio/") {
		return nil, fmt.Errorf("%w: only audio files are accepted, got %q", catalog.ErrInvalidArgument, req.ContentType)
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(req.Filename), filepath.Ext(req.Filename))
	}
	if title == "" || title == "." {
		return nil, fmt.Errorf("%w: title is required", catalog.ErrInvalidArgument)
	}

	workDir, err := os.MkdirTemp(s.opts.TempDir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "source"+filepath.Ext(req.Filename))
	if err := spool(req.File, input); err != nil {
		return nil, err
	}

	output := filepath.Join(workDir, "audio.ogg")
	if err := s.processor.ConvertToOgg(ctx, input, output); err != nil {
		return nil, fmt.Errorf("转码失败: %w", err)
	}
	duration, err := s.processor.ProbeDuration(ctx, output)
	if err != nil {
		logger.Warn("[Library] 获取时长失败", logger.ErrorField(err))
		duration = 0
	}

	id := uuid.NewString()
	key := storage.SongAudioKey(id)
	if err := putFile(ctx, s.store, key, output, "audio/ogg"); err != nil {
		return nil, fmt.Errorf("上传音频失败: %w", err)
	}

	song := model.NewSong(id, title, req.Artists, s.now())
	song.AlbumID = req.AlbumID
	song.Duration = duration
	song.ReleaseDate = req.ReleaseDate
	song.FilePath = key
	if err := s.repo.Create(ctx, song); err != nil {
		// 数据库写入失败时清理已上传的音频
		if _, derr := s.store.DeletePrefix(ctx, key); derr != nil {
			logger.Warn("[Library] 清理音频失败", logger.String("key", key), logger.ErrorField(derr))
		}
		return nil, fmt.Errorf("保存歌曲失败: %w", err)
	}

	logger.Info("[Library] 歌曲上传完成",
		logger.String("songId", id),
		logger.String("title", title),
		logger.Int("duration", duration))
	return song, nil
}

// AttachVideo converts the upload to HLS, stores it under the song and flags hasVideo.
func (s *Service) AttachVideo(ctx context.Context, id string, file io.Reader, filename string) (*model.Song, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp(s.opts.TempDir, "video-*")
	if err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}
	defer os.RemoveAll(workDir)

	input := filepath.Join(workDir, "source"+filepath.Ext(filename))
	if err := spool(file, input); err != nil {
		return nil, err
	}

	prefix := storage.SongVideoPrefix(id)
	previous, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("读取旧视频失败: %w", err)
	}

	result, err := s.pipeline.Run(ctx, input, filepath.Join(workDir, "hls"), prefix, s.opts.SegmentTime)
	if err != nil {
		// 没有上传任何文件时旧视频保持完整
		if result != nil {
			s.discardVideo(ctx, id, prefix)
		}
		return nil, fmt.Errorf("视频处理失败: %w", err)
	}

	song, err := s.update(ctx, id, func(song *model.Song) error {
		song.HasVideo = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.removeStale(ctx, id, previous, result.Keys)

	logger.Info("[Library] 视频已关联",
		logger.String("songId", id),
		logger.Int("files", result.Uploaded),
		logger.Duration("took", result.TotalTime))
	return song, nil
}

// removeStale 删除新视频没有覆盖到的旧对象
func (s *Service) removeStale(ctx context.Context, id string, previous []storage.ObjectInfo, current []string) {
	keep := make(map[string]bool, len(current))
	for _, key := range current {
		keep[key] = true
	}
	removed := 0
	for _, obj := range previous {
		if keep[obj.Key] {
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			logger.Warn("[Library] 删除旧视频文件失败", logger.String("key", obj.Key), logger.ErrorField(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		logger.Info("[Library] 已删除旧视频", logger.String("songId", id), logger.Int("objects", removed))
	}
}

// discardVideo 旧视频已被部分覆盖，清空目录并取消 hasVideo
func (s *Service) discardVideo(ctx context.Context, id, prefix string) {
	if _, err := s.store.DeletePrefix(ctx, prefix); err != nil {
		logger.Warn("[Library] 清理视频失败", logger.String("songId", id), logger.ErrorField(err))
	}
	if _, err := s.update(ctx, id, func(song *model.Song) error {
		song.HasVideo = false
		return nil
	}); err != nil {
		logger.Error("[Library] 重置 hasVideo 失败", logger.String("songId", id), logger.ErrorField(err))
	}
}

// Get returns the song or catalog.ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*model.Song, error) {
	song, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load song %s: %w", id, err)
	}
	if song == nil {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	return song, nil
}

// SearchResult 分页搜索结果
type SearchResult struct {
	Items []*model.Song `json:"items"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// Search matches q against titles. publishedOnly drops every song whose
// effective status is not Publicado.
func (s *Service) Search(ctx context.Context, q string, page, limit int, publishedOnly bool) (*SearchResult, error) {
	if err := checkPaging(page, limit); err != nil {
		return nil, err
	}
	songs, err := s.repo.SearchByTitle(ctx, strings.TrimSpace(q))
	if err != nil {
		return nil, fmt.Errorf("search songs: %w", err)
	}
	if publishedOnly {
		kept := songs[:0]
		for _, song := range songs {
			if catalog.EffectiveStatusOf(song) == model.EffectivePublished {
				kept = append(kept, song)
			}
		}
		songs = kept
	}

	total := len(songs)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return &SearchResult{Items: songs[start:end], Total: total, Page: page, Limit: limit}, nil
}

// Random returns up to limit songs in random order.
func (s *Service) Random(ctx context.Context, limit int) ([]*model.Song, error) {
	if err := checkPaging(1, limit); err != nil {
		return nil, err
	}
	songs, err := s.repo.Random(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("random songs: %w", err)
	}
	return songs, nil
}

// MetadataPatch nil 字段保持不变
type MetadataPatch struct {
	Title       *string         `json:"title"`
	Artists     *[]model.Artist `json:"artists"`
	AlbumID     *string         `json:"albumId"`
	Duration    *string         `json:"duration"` // HH:MM:SS, MM:SS 或秒数
	ReleaseDate *string         `json:"releaseDate"`
}

// UpdateMetadata applies patch to the song. Availability fields are not
// touched here; those go through the catalog service.
func (s *Service) UpdateMetadata(ctx context.Context, id string, patch MetadataPatch) (*model.Song, error) {
	var (
		duration    int
		releaseDate *time.Time
	)
	if patch.Title != nil && strings.TrimSpace(*patch.Title) == "" {
		return nil, fmt.Errorf("%w: title must not be empty", catalog.ErrInvalidArgument)
	}
	if patch.Duration != nil {
		d, err := ParseDuration(*patch.Duration)
		if err != nil {
			return nil, err
		}
		duration = d
	}
	if patch.ReleaseDate != nil && *patch.ReleaseDate != "" {
		t, ok := catalog.ParseDate(*patch.ReleaseDate)
		if !ok {
			return nil, fmt.Errorf("%w: invalid releaseDate %q", catalog.ErrInvalidArgument, *patch.ReleaseDate)
		}
		releaseDate = &t
	}

	return s.update(ctx, id, func(song *model.Song) error {
		if patch.Title != nil {
			song.Title = strings.TrimSpace(*patch.Title)
		}
		if patch.Artists != nil {
			song.Artists = model.ArtistList(*patch.Artists)
		}
		if patch.AlbumID != nil {
			song.AlbumID = *patch.AlbumID
		}
		if patch.Duration != nil {
			song.Duration = duration
		}
		if patch.ReleaseDate != nil {
			// 空字符串清除发行日期
			song.ReleaseDate = releaseDate
		}
		return nil
	})
}

// update 读取-修改-保存，版本冲突时重新读取后重试
func (s *Service) update(ctx context.Context, id string, fn func(*model.Song) error) (*model.Song, error) {
	for attempt := 1; ; attempt++ {
		song, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(song); err != nil {
			return nil, err
		}
		song.UpdatedAt = s.now()
		err = s.repo.Save(ctx, song)
		if err == nil {
			return song, nil
		}
		if !errors.Is(err, repository.ErrStaleVersion) {
			return nil, fmt.Errorf("save song %s: %w", id, err)
		}
		if attempt == saveAttempts {
			return nil, fmt.Errorf("%w: %s", catalog.ErrConflict, id)
		}
		logger.Debug("[Library] 版本冲突，重试", logger.String("songId", id), logger.Int("attempt", attempt))
	}
}

// ParseDuration 解析 "HH:MM:SS"、"MM:SS" 或纯秒数
func ParseDuration(value string) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("%w: empty duration", catalog.ErrInvalidArgument)
	}
	parts := strings.Split(value, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("%w: invalid duration %q", catalog.ErrInvalidArgument, value)
	}
	total := 0
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || strings.HasPrefix(part, "+") {
			return 0, fmt.Errorf("%w: invalid duration %q", catalog.ErrInvalidArgument, value)
		}
		// 除最高位外，分和秒不能超过 59
		if i > 0 && n > 59 {
			return 0, fmt.Errorf("%w: invalid duration %q", catalog.ErrInvalidArgument, value)
		}
		total = total*60 + n
	}
	return total, nil
}

func checkPaging(page, limit int) error {
	if page < 1 {
		return fmt.Errorf("%w: page must be >= 1", catalog.ErrInvalidArgument)
	}
	if limit < 1 || limit > MaxLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", catalog.ErrInvalidArgument, MaxLimit)
	}
	return nil
}

func spool(r io.Reader, dst string) error {
	if r == nil {
		return fmt.Errorf("%w: file is required", catalog.ErrInvalidArgument)
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	return nil
}

func putFile(ctx context.Context, store storage.MediaStore, key, path, contentType string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	return store.Put(ctx, key, f, info.Size(), contentType)
}
