package media

import "context"

// Processor defines the transcoding operations the library needs.
type Processor interface {
	// ConvertToOgg transcodes any audio input to Ogg Vorbis.
	ConvertToOgg(ctx context.Context, inputFile, outputFile string) error
	// ProbeDuration returns the media duration in whole seconds.
	ProbeDuration(ctx context.Context, inputFile string) (int, error)
	// ConvertToHLS writes playlist.m3u8 and its segments into outputDir.
	ConvertToHLS(ctx context.Context, inputFile, outputDir, segmentTime string) error
}

// PlaylistName is the HLS playlist file written by ConvertToHLS.
const PlaylistName = "playlist.m3u8"
