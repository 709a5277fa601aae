package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"
)

// ErrObjectNotFound 对象不存在
var ErrObjectNotFound = errors.New("object not found")

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// MediaStore 媒体对象存储
type MediaStore interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Stat(ctx context.Context, key string) (ObjectInfo, error)
	// Open 读取 [offset, offset+length)，length < 0 表示读到末尾
	Open(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Delete 删除单个对象，对象不存在不算错误
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// 对象路径
func SongAudioKey(songID string) string {
	return path.Join("songs", songID+".ogg")
}

func SongVideoPrefix(songID string) string {
	return path.Join("songs", songID, "video") + "/"
}

func SongVideoKey(songID, filename string) string {
	return SongVideoPrefix(songID) + filename
}

// ContentTypeFor 按扩展名推断媒体类型
func ContentTypeFor(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".m3u8":
		return "application/x-mpegURL"
	case ".ts":
		return "video/mp2t"
	case ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
