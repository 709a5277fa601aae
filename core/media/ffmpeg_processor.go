package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"songcatalog/logger"
)

// FFmpegProcessor implements the Processor interface using ffmpeg.
type FFmpegProcessor struct {
	ffmpegPath string
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
func NewFFmpegProcessor(ffmpegPath string) *FFmpegProcessor {
	return &FFmpegProcessor{ffmpegPath: ffmpegPath}
}

func (p *FFmpegProcessor) ffprobePath() string {
	return strings.Replace(p.ffmpegPath, "ffmpeg", "ffprobe", 1)
}

// ConvertToOgg 转码为 ogg
func (p *FFmpegProcessor) ConvertToOgg(ctx context.Context, inputFile, outputFile string) error {
	args := []string{
		"-y",
		"-i", inputFile,
		"-vn",
		"-c:a", "libvorbis",
		"-q:a", "5",
		outputFile,
	}
	return p.run(ctx, inputFile, args)
}

// ConvertToHLS 视频转 HLS：H.264 + AAC，全部分片保留在播放列表中
func (p *FFmpegProcessor) ConvertToHLS(ctx context.Context, inputFile, outputDir, segmentTime string) error {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", outputDir, err)
	}
	args := []string{
		"-y",
		"-i", inputFile,
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", "medium",
		"-c:a", "aac",
		"-b:a", "128k",
		"-hls_time", segmentTime,
		"-hls_list_size", "0",
		// 分片先写 .tmp 再改名，监听方只会看到完整的 .ts
		"-hls_flags", "temp_file",
		"-hls_segment_filename", filepath.Join(outputDir, "segment_%03d.ts"),
		"-f", "hls",
		filepath.Join(outputDir, PlaylistName),
	}
	return p.run(ctx, inputFile, args)
}

func (p *FFmpegProcessor) run(ctx context.Context, inputFile string, args []string) error {
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	logger.Debug("执行 FFmpeg 命令", logger.String("cmd", p.ffmpegPath+" "+strings.Join(args, " ")))

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg execution failed for %s: %w\nFFmpeg Error: %s", inputFile, err, stderr.String())
	}
	return nil
}

// ffprobeOutput defines the structure for ffprobe JSON output.
type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeDuration uses ffprobe to get the duration of a media file in seconds.
func (p *FFmpegProcessor) ProbeDuration(ctx context.Context, inputFile string) (int, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "json",
		inputFile,
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath(), args...)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe execution failed for %s: %w\nFFprobe Error: %s", inputFile, err, stderr.String())
	}
	return parseProbeDuration(out.Bytes())
}

func parseProbeDuration(data []byte) (int, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(data, &probeData); err != nil {
		return 0, fmt.Errorf("failed to unmarshal ffprobe output: %w", err)
	}
	if probeData.Format.Duration == "" {
		return 0, fmt.Errorf("duration not found in ffprobe output")
	}
	duration, err := strconv.ParseFloat(probeData.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration string %q: %w", probeData.Format.Duration, err)
	}
	return int(math.Round(duration)), nil
}
