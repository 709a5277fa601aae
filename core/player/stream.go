package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"

	"songcatalog/core/catalog"
	"songcatalog/logger"
	"songcatalog/model"
	"songcatalog/repository"
	"songcatalog/storage"
)

var (
	ErrNotFound             = errors.New("song not found")
	ErrForbidden            = errors.New("Song is not available in this region")
	ErrRangeNotSatisfiable  = errors.New("requested range not satisfiable")
	ErrInvalidVideoFilename = errors.New("invalid video filename")
)

// StreamDetails 是一次播放请求的结果，调用方负责关闭 Body
type StreamDetails struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	ContentRange  string // 为空表示完整内容
	Partial       bool
}

// Service 负责按地区校验后输出音频和视频流
type Service struct {
	repo  repository.SongRepository
	store storage.MediaStore
}

func NewService(repo repository.SongRepository, store storage.MediaStore) *Service {
	return &Service{repo: repo, store: store}
}

// SongStream opens the song's OGG audio for the requested byte range.
func (s *Service) SongStream(ctx context.Context, id, rangeHeader, region string) (*StreamDetails, error) {
	if _, err := s.playable(ctx, id, region); err != nil {
		return nil, err
	}
	return s.open(ctx, storage.SongAudioKey(id), rangeHeader)
}

// VideoStream opens one file of the song's HLS rendition.
func (s *Service) VideoStream(ctx context.Context, id, filename, rangeHeader, region string) (*StreamDetails, error) {
	if filename == "" || filename != path.Base(filename) || strings.Contains(filename, "..") || strings.ContainsAny(filename, `/\`) {
		return nil, ErrInvalidVideoFilename
	}
	song, err := s.playable(ctx, id, region)
	if err != nil {
		return nil, err
	}
	if !song.HasVideo {
		return nil, ErrNotFound
	}
	return s.open(ctx, storage.SongVideoKey(id, filename), rangeHeader)
}

func (s *Service) playable(ctx context.Context, id, region string) (*model.Song, error) {
	song, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load song %s: %w", id, err)
	}
	if song == nil {
		return nil, ErrNotFound
	}
	if !catalog.IsAvailableIn(song, region) {
		logger.Debug("[Player] 地区不可播放",
			logger.String("songId", id),
			logger.String("region", region),
			logger.String("status", string(catalog.EffectiveStatusOf(song))))
		return nil, ErrForbidden
	}
	return song, nil
}

func (s *Service) open(ctx context.Context, key, rangeHeader string) (*StreamDetails, error) {
	info, err := s.store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}

	contentType := info.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.ContentTypeFor(key)
	}

	if rangeHeader == "" {
		body, err := s.store.Open(ctx, key, 0, -1)
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", key, err)
		}
		return &StreamDetails{Body: body, ContentType: contentType, ContentLength: info.Size}, nil
	}

	start, end, err := ParseRange(rangeHeader, info.Size)
	if err != nil {
		return nil, err
	}
	length := end - start + 1
	body, err := s.store.Open(ctx, key, start, length)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return &StreamDetails{
		Body:          body,
		ContentType:   contentType,
		ContentLength: length,
		ContentRange:  fmt.Sprintf("bytes %d-%d/%d", start, end, info.Size),
		Partial:       true,
	}, nil
}

// ParseRange parses a single "bytes=" range against size and returns the
// inclusive [start, end] pair. Supported forms: start-end, start-, -suffix.
func ParseRange(header string, size int64) (int64, int64, error) {
	byteRange, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok || size <= 0 || strings.Contains(byteRange, ",") {
		return 0, 0, ErrRangeNotSatisfiable
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(byteRange), "-")
	if !ok {
		return 0, 0, ErrRangeNotSatisfiable
	}

	// bytes=-N 表示最后 N 个字节
	if startStr == "" {
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return 0, 0, ErrRangeNotSatisfiable
		}
		if suffix > size {
			suffix = size
		}
		return size - suffix, size - 1, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 || start >= size {
		return 0, 0, ErrRangeNotSatisfiable
	}
	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return 0, 0, ErrRangeNotSatisfiable
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return start, end, nil
}
