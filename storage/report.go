package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// BucketStats 存储桶统计信息
type BucketStats struct {
	TotalObjects int64
	TotalSize    int64
	LastModified time.Time
	TypeCounts   map[string]int64 // 按扩展名统计
}

// CollectStats 统计前缀下的对象
func CollectStats(ctx context.Context, store MediaStore, prefix string) (*BucketStats, []ObjectInfo, error) {
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return nil, nil, err
	}
	stats := &BucketStats{TypeCounts: make(map[string]int64)}
	for _, obj := range objects {
		stats.TotalObjects++
		stats.TotalSize += obj.Size
		if obj.LastModified.After(stats.LastModified) {
			stats.LastModified = obj.LastModified
		}
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(obj.Key), "."))
		if ext == "" {
			ext = "other"
		}
		stats.TypeCounts[ext]++
	}
	return stats, objects, nil
}

// WriteStats 打印统计信息
func WriteStats(w io.Writer, stats *BucketStats) {
	fmt.Fprintf(w, "总大小: %s\n", humanize.Bytes(uint64(stats.TotalSize)))
	fmt.Fprintf(w, "对象数量: %d\n", stats.TotalObjects)
	if !stats.LastModified.IsZero() {
		fmt.Fprintf(w, "最后修改时间: %s (%s)\n", stats.LastModified.Format(time.RFC3339), humanize.Time(stats.LastModified))
	}

	exts := make([]string, 0, len(stats.TypeCounts))
	for ext := range stats.TypeCounts {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	for _, ext := range exts {
		fmt.Fprintf(w, "%s: %d 个文件\n", ext, stats.TypeCounts[ext])
	}
}

// WriteTree 打印目录结构
func WriteTree(w io.Writer, objects []ObjectInfo) {
	sorted := append([]ObjectInfo(nil), objects...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	printed := make(map[string]bool)
	for _, obj := range sorted {
		parts := strings.Split(obj.Key, "/")
		for i := 0; i < len(parts)-1; i++ {
			dir := strings.Join(parts[:i+1], "/")
			if printed[dir] {
				continue
			}
			printed[dir] = true
			fmt.Fprintf(w, "%s%s/\n", strings.Repeat("  ", i), parts[i])
		}
		fmt.Fprintf(w, "%s%s (%s)\n", strings.Repeat("  ", len(parts)-1), parts[len(parts)-1], humanize.Bytes(uint64(obj.Size)))
	}
}
