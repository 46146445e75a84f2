package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/visionpipe/video-detection-service/domain"
)

// FFmpegExtractor probes and samples videos with ffprobe/ffmpeg.
// Sampling keeps every Nth source frame; emitted indices are the
// 0-based ordinals of the kept frames. Re-running extraction on the
// same file with the same interval always yields the same indices and
// timestamps, which is what the retry path depends on.
type FFmpegExtractor struct {
	FFmpegPath  string
	FFprobePath string
}

func NewFFmpegExtractor() *FFmpegExtractor {
	return &FFmpegExtractor{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

type ffprobeOutput struct {
	Streams []struct {
		CodecType  string `json:"codec_type"`
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		NbFrames   string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
		Size     string `json:"size"`
	} `json:"format"`
}

func (e *FFmpegExtractor) Probe(ctx context.Context, path string) (domain.VideoMetadata, error) {
	cmd := exec.CommandContext(ctx, e.FFprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)
	out, err := cmd.Output()
	if err != nil {
		return domain.VideoMetadata{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return domain.VideoMetadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var meta domain.VideoMetadata
	meta.DurationSeconds, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	meta.SizeBytes, _ = strconv.ParseInt(probe.Format.Size, 10, 64)

	for _, s := range probe.Streams {
		if s.CodecType != "video" {
			continue
		}
		meta.Width = s.Width
		meta.Height = s.Height
		meta.FPS = parseFrameRate(s.RFrameRate)
		meta.FrameCount, _ = strconv.Atoi(s.NbFrames)
		break
	}
	if meta.FPS == 0 {
		return domain.VideoMetadata{}, fmt.Errorf("no video stream in %s", path)
	}
	if meta.FrameCount == 0 && meta.DurationSeconds > 0 {
		// Some containers omit nb_frames; estimate from duration.
		meta.FrameCount = int(meta.DurationSeconds * meta.FPS)
	}
	return meta, nil
}

func (e *FFmpegExtractor) ExtractFrames(ctx context.Context, path string, interval int, fn func(domain.ExtractedFrame) error) error {
	if interval < 1 {
		interval = 1
	}

	meta, err := e.Probe(ctx, path)
	if err != nil {
		return err
	}

	dir, err := os.MkdirTemp("", "frames-")
	if err != nil {
		return fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(dir)

	filter := fmt.Sprintf(`select=not(mod(n\,%d))`, interval)
	cmd := exec.CommandContext(ctx, e.FFmpegPath,
		"-i", path,
		"-vf", filter,
		"-vsync", "vfr",
		"-q:v", "2",
		filepath.Join(dir, "frame_%06d.jpg"))
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg frame extraction: %w", err)
	}

	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return fmt.Errorf("list extracted frames: %w", err)
	}
	sort.Strings(paths)

	for i, p := range paths {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read frame %s: %w", filepath.Base(p), err)
		}
		frame := domain.ExtractedFrame{
			Index:            i,
			TimestampSeconds: FrameTimestamp(i, interval, meta.FPS),
			Data:             data,
		}
		if err := fn(frame); err != nil {
			return err
		}
	}
	return nil
}

// FrameTimestamp derives the position of sampled frame index in the
// source video. It is a pure function of (index, interval, fps).
func FrameTimestamp(index, interval int, fps float64) float64 {
	if fps <= 0 {
		return 0
	}
	return float64(index*interval) / fps
}

// parseFrameRate converts ffprobe's "num/den" rational to a float.
func parseFrameRate(r string) float64 {
	parts := strings.SplitN(r, "/", 2)
	if len(parts) == 1 {
		f, _ := strconv.ParseFloat(parts[0], 64)
		return f
	}
	num, err1 := strconv.ParseFloat(parts[0], 64)
	den, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil || den == 0 {
		return 0
	}
	return num / den
}
