package media

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/MimeLyc/shorts-publisher/pkg/log"
)

const (
	// frame grabbed when the probe fails or the clip is long enough
	defaultSeek = time.Second
	bandHeight  = 360
	maxTitle    = 48
	shownTags   = 3
)

type ffmpeg struct {
	ffmpegCmd  string
	ffprobeCmd string
	outDir     string
	brandColor string
}

func NewFfmpeg(
	ffmpegPath string,
	outDir string,
	brandColor string,
) ffmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	return ffmpeg{
		ffmpegCmd:  ffmpegPath,
		ffprobeCmd: probeCommandFor(ffmpegPath),
		outDir:     filepath.Clean(outDir),
		brandColor: brandColor,
	}
}

// probeCommandFor finds the ffprobe that ships next to the given ffmpeg.
func probeCommandFor(ffmpegPath string) string {
	dir, base := filepath.Split(ffmpegPath)
	probe := strings.Replace(base, "ffmpeg", "ffprobe", 1)
	if probe == base {
		probe = "ffprobe"
	}
	if dir == "" {
		return probe
	}
	return filepath.Join(dir, probe)
}

// Render grabs one frame, crops it to a vertical card and overlays a brand
// band with the title and the first hashtags. Output is <outDir>/<jobID>.jpg.
func (ff ffmpeg) Render(ctx context.Context, videoPath string, jobID string, meta jobs.Metadata) (string, error) {
	cmdPath, err := exec.LookPath(ff.ffmpegCmd)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(ff.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create thumbnail dir: %w", err)
	}

	titleFile, err := writeTextFile(overlayTitle(meta.Title))
	if err != nil {
		return "", err
	}
	defer os.Remove(titleFile)

	tagsFile, err := writeTextFile(overlayTags(meta.Hashtags))
	if err != nil {
		return "", err
	}
	defer os.Remove(tagsFile)

	output := filepath.Join(ff.outDir, jobID+".jpg")
	seek := ff.seekPosition(ctx, videoPath)

	cmd := exec.CommandContext(ctx, cmdPath, ff.thumbnailArgs(videoPath, output, seek, titleFile, tagsFile)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		_ = os.Remove(output)
		log.Debug("ffmpeg output: %s", string(out))
		return "", fmt.Errorf("render thumbnail for %s: %w", jobID, err)
	}
	return output, nil
}

// seekPosition picks the default seek, or the midpoint for clips shorter
// than twice that.
func (ff ffmpeg) seekPosition(ctx context.Context, videoPath string) time.Duration {
	duration, err := ff.probeDuration(ctx, videoPath)
	if err != nil {
		log.Debug("Failed to probe %s, seeking to %s: %v", videoPath, defaultSeek, err)
		return defaultSeek
	}
	if duration < 2*defaultSeek {
		return duration / 2
	}
	return defaultSeek
}

func (ff ffmpeg) probeDuration(ctx context.Context, videoPath string) (time.Duration, error) {
	cmdPath, err := exec.LookPath(ff.ffprobeCmd)
	if err != nil {
		return 0, err
	}
	output, runErr := exec.CommandContext(ctx, cmdPath, ff.readProbeArgs(videoPath)...).Output()
	duration, err := parseProbeDuration(output)
	if err != nil {
		if runErr != nil {
			return 0, runErr
		}
		return 0, err
	}
	return duration, nil
}

func parseProbeDuration(output []byte) (time.Duration, error) {
	var probeResult struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probeResult); err != nil {
		return 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if probeResult.Format.Duration == "" {
		return 0, fmt.Errorf("ffprobe reported no duration")
	}
	seconds, err := strconv.ParseFloat(probeResult.Format.Duration, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", probeResult.Format.Duration, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

func (ffmpeg) readProbeArgs(path string) []string {
	return []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	}
}

func (ff ffmpeg) thumbnailArgs(input, output string, seek time.Duration, titleFile, tagsFile string) []string {
	return []string{
		"-y",
		"-ss", strconv.FormatFloat(seek.Seconds(), 'f', 3, 64),
		"-i", input,
		"-frames:v", "1",
		"-vf", ff.filterGraph(titleFile, tagsFile),
		"-q:v", "2",
		output,
	}
}

func (ff ffmpeg) filterGraph(titleFile, tagsFile string) string {
	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", ThumbnailWidth, ThumbnailHeight),
		fmt.Sprintf("crop=%d:%d", ThumbnailWidth, ThumbnailHeight),
		fmt.Sprintf("drawbox=x=0:y=ih-%d:w=iw:h=%d:color=%s@0.85:t=fill", bandHeight, bandHeight, ffmpegColor(ff.brandColor)),
		fmt.Sprintf("drawtext=textfile='%s':fontcolor=white:fontsize=64:x=(w-text_w)/2:y=h-%d", escapeFilterValue(titleFile), bandHeight-60),
		fmt.Sprintf("drawtext=textfile='%s':fontcolor=white@0.8:fontsize=36:x=(w-text_w)/2:y=h-110", escapeFilterValue(tagsFile)),
	}
	return strings.Join(filters, ",")
}

// ffmpegColor turns "#rrggbb" into ffmpeg's "0xrrggbb".
func ffmpegColor(color string) string {
	if strings.HasPrefix(color, "#") {
		return "0x" + strings.TrimPrefix(color, "#")
	}
	if color == "" {
		return "black"
	}
	return color
}

// escapeFilterValue quotes a path for use inside a single quoted filter option.
func escapeFilterValue(value string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `'\''`, `:`, `\:`)
	return r.Replace(value)
}

func overlayTitle(title string) string {
	upper := []rune(strings.ToUpper(strings.TrimSpace(title)))
	if len(upper) > maxTitle {
		upper = append(upper[:maxTitle-1], '…')
	}
	return string(upper)
}

func overlayTags(hashtags []string) string {
	if len(hashtags) > shownTags {
		hashtags = hashtags[:shownTags]
	}
	return strings.Join(hashtags, " ")
}

func writeTextFile(text string) (string, error) {
	f, err := os.CreateTemp("", "shorts-thumb-*.txt")
	if err != nil {
		return "", fmt.Errorf("create overlay text file: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write overlay text file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
