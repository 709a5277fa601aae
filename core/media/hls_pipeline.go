package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"songcatalog/logger"
	"songcatalog/storage"

	"github.com/fsnotify/fsnotify"
)

// HLSPipeline 流水线处理器
// 边转码边上传：FFmpeg 输出分片 → fsnotify 监听 → WorkerPool 并行上传
type HLSPipeline struct {
	processor   Processor
	store       storage.MediaStore
	workerCount int
}

// segmentTask 分片上传任务
type segmentTask struct {
	path string
	name string
}

// PipelineResult 流水线处理结果，出错时 Keys 记录已经上传的对象
type PipelineResult struct {
	Uploaded       int
	Keys           []string
	FirstSegmentAt time.Time // 首个分片可用时间
	TotalTime      time.Duration
}

// NewHLSPipeline 创建流水线处理器
func NewHLSPipeline(processor Processor, store storage.MediaStore, workers int) *HLSPipeline {
	if workers <= 0 {
		workers = runtime.NumCPU()
		if workers > 8 {
			workers = 8
		}
	}
	return &HLSPipeline{
		processor:   processor,
		store:       store,
		workerCount: workers,
	}
}

// Run converts inputPath to HLS inside workDir and uploads every produced
// file under keyPrefix. A segment is uploaded once ffmpeg has moved on to
// the next one or listed it in the playlist; the playlist is uploaded last
// so it never references a missing segment. On failure the returned result
// is non-nil when anything had already been uploaded.
func (p *HLSPipeline) Run(ctx context.Context, inputPath, workDir, keyPrefix, segmentTime string) (*PipelineResult, error) {
	startTime := time.Now()

	if _, err := os.Stat(inputPath); err != nil {
		return nil, fmt.Errorf("输入文件不存在: %w", err)
	}
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监听器失败: %w", err)
	}
	if err := watcher.Add(workDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("监听目录失败: %w", err)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		keys      []string
		failed    int32
		firstOnce sync.Once
		firstAt   time.Time
	)
	tasks := make(chan segmentTask, 100)
	processed := &sync.Map{}

	for i := 0; i < p.workerCount; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for task := range tasks {
				if err := p.upload(ctx, keyPrefix, task); err != nil {
					atomic.AddInt32(&failed, 1)
					logger.Warn("分片上传失败",
						logger.Int("worker", workerID),
						logger.String("segment", task.name),
						logger.ErrorField(err))
					continue
				}
				firstOnce.Do(func() { firstAt = time.Now() })
				mu.Lock()
				keys = append(keys, keyPrefix+task.name)
				mu.Unlock()
			}
		}(i)
	}

	watchCtx, stopWatching := context.WithCancel(ctx)
	watcherDone := make(chan struct{})
	go func() {
		defer close(watcherDone)
		p.watchSegments(watchCtx, watcher, tasks, processed)
	}()

	ffmpegErr := p.processor.ConvertToHLS(ctx, inputPath, workDir, segmentTime)

	stopWatching()
	<-watcherDone
	watcher.Close()

	if ffmpegErr == nil {
		p.sweep(workDir, tasks, processed)
	}
	close(tasks)
	wg.Wait()

	partial := func() *PipelineResult {
		if len(keys) == 0 {
			return nil
		}
		sort.Strings(keys)
		return &PipelineResult{Uploaded: len(keys), Keys: keys, FirstSegmentAt: firstAt, TotalTime: time.Since(startTime)}
	}

	if ffmpegErr != nil {
		return partial(), fmt.Errorf("FFmpeg 处理失败: %w", ffmpegErr)
	}
	if n := atomic.LoadInt32(&failed); n > 0 {
		return partial(), fmt.Errorf("%d 个文件上传失败", n)
	}
	// 播放列表最后上传
	playlist := segmentTask{path: filepath.Join(workDir, PlaylistName), name: PlaylistName}
	if err := p.upload(ctx, keyPrefix, playlist); err != nil {
		return partial(), fmt.Errorf("上传播放列表失败: %w", err)
	}
	keys = append(keys, keyPrefix+PlaylistName)

	result := partial()
	logger.Info("流水线处理完成",
		logger.String("prefix", keyPrefix),
		logger.Int("uploaded", result.Uploaded),
		logger.Duration("totalTime", result.TotalTime))
	return result, nil
}

// watchSegments 推送已经写完的分片：下一个分片出现或播放列表引用之后才算写完，
// 最后一个分片由 sweep 在 FFmpeg 退出后处理
func (p *HLSPipeline) watchSegments(ctx context.Context, watcher *fsnotify.Watcher, tasks chan<- segmentTask, processed *sync.Map) {
	var order []string
	seen := make(map[string]bool)
	ready := make(map[string]string) // name -> path

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			dir, name := filepath.Split(event.Name)
			switch {
			case filepath.Ext(name) == ".ts":
				if seen[event.Name] {
					continue
				}
				seen[event.Name] = true
				order = append(order, event.Name)
				if n := len(order); n > 1 {
					prev := order[n-2]
					ready[filepath.Base(prev)] = prev
				}
			case name == PlaylistName:
				for _, seg := range playlistSegments(event.Name) {
					ready[seg] = filepath.Join(dir, seg)
				}
			default:
				continue
			}

			for name, path := range ready {
				if !p.enqueue(ctx, tasks, processed, segmentTask{path: path, name: name}) {
					return
				}
				delete(ready, name)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("文件监听错误", logger.ErrorField(err))
		}
	}
}

// enqueue 每个分片只推送一次，ctx 结束时返回 false
func (p *HLSPipeline) enqueue(ctx context.Context, tasks chan<- segmentTask, processed *sync.Map, task segmentTask) bool {
	if _, loaded := processed.LoadOrStore(task.name, true); loaded {
		return true
	}
	select {
	case tasks <- task:
		return true
	case <-ctx.Done():
		// 交给 sweep
		processed.Delete(task.name)
		return false
	}
}

// playlistSegments 读取播放列表中已完整写入的分片名
func playlistSegments(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	text := string(data)
	// 最后一行可能还没写完
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	} else {
		return nil
	}
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.ContainsAny(line, "/\\") || filepath.Ext(line) != ".ts" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// sweep 处理监听期间遗漏的分片
func (p *HLSPipeline) sweep(workDir string, tasks chan<- segmentTask, processed *sync.Map) {
	files, err := filepath.Glob(filepath.Join(workDir, "*.ts"))
	if err != nil {
		return
	}
	sort.Strings(files)
	for _, path := range files {
		name := filepath.Base(path)
		if _, loaded := processed.LoadOrStore(name, true); loaded {
			continue
		}
		tasks <- segmentTask{path: path, name: name}
	}
}

func (p *HLSPipeline) upload(ctx context.Context, keyPrefix string, task segmentTask) error {
	f, err := os.Open(task.path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	key := keyPrefix + task.name
	return p.store.Put(ctx, key, f, info.Size(), storage.ContentTypeFor(key))
}
