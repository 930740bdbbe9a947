package media

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/MimeLyc/shorts-publisher/internal/jobs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// installMockTools writes fake ffmpeg/ffprobe scripts into a directory
// prepended to PATH. The fake ffmpeg records its arguments and writes the
// last one as the output file.
func installMockTools(t *testing.T, probeOutput string, ffmpegExit int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("mock tools use sh scripts")
	}

	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")

	probe := "#!/bin/sh\necho '" + probeOutput + "'\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ffprobe"), []byte(probe), 0o755))

	ff := "#!/bin/sh\nfor a in \"$@\"; do echo \"$a\" >> '" + argsFile + "'; last=\"$a\"; done\n"
	if ffmpegExit == 0 {
		ff += "echo jpeg > \"$last\"\n"
	}
	ff += "exit " + string(rune('0'+ffmpegExit)) + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ffmpeg"), []byte(ff), 0o755))

	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return argsFile
}

func TestFFmpeg_Render(t *testing.T) {
	argsFile := installMockTools(t, `{"format":{"duration":"12.5"}}`, 0)
	outDir := filepath.Join(t.TempDir(), "thumbnails")

	ff := NewFfmpeg("ffmpeg", outDir, "#6d8cff")
	path, err := ff.Render(context.Background(), "/videos/in.mp4", "job-1", jobs.Metadata{
		Title:    "Beach Day",
		Hashtags: []string{"#a", "#b", "#c", "#d"},
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(outDir, "job-1.jpg"), path)
	assert.FileExists(t, path)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	args := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Equal(t, []string{"-y", "-ss", "1.000", "-i", "/videos/in.mp4", "-frames:v", "1"}, args[:7])
	assert.Contains(t, args[8], "crop=720:1280")
	assert.Contains(t, args[8], "color=0x6d8cff@0.85")
	assert.Equal(t, path, args[len(args)-1])
}

func TestFFmpeg_RenderShortClipSeeksToMidpoint(t *testing.T) {
	argsFile := installMockTools(t, `{"format":{"duration":"1.2"}}`, 0)

	ff := NewFfmpeg("ffmpeg", t.TempDir(), "#000000")
	_, err := ff.Render(context.Background(), "in.mp4", "job-2", jobs.Metadata{Title: "x"})
	require.NoError(t, err)

	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n0.600\n")
}

func TestFFmpeg_RenderFailureRemovesOutput(t *testing.T) {
	installMockTools(t, `not json`, 1)
	outDir := t.TempDir()

	ff := NewFfmpeg("ffmpeg", outDir, "#000000")
	_, err := ff.Render(context.Background(), "in.mp4", "job-3", jobs.Metadata{Title: "x"})
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(outDir, "job-3.jpg"))
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	t.Setenv("PATH", "")

	ff := NewFfmpeg("", t.TempDir(), "#000000")
	_, err := ff.Render(context.Background(), "in.mp4", "job", jobs.Metadata{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg")
}

func TestFFmpeg_readProbeArgs(t *testing.T) {
	ff := NewFfmpeg("ffmpeg", "out", "#000000")
	assert.Equal(t, []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"/path/to/video.mp4",
	}, ff.readProbeArgs("/path/to/video.mp4"))
}

func TestParseProbeDuration(t *testing.T) {
	d, err := parseProbeDuration([]byte(`{"format":{"duration":"3.250000"}}`))
	require.NoError(t, err)
	assert.Equal(t, 3250*time.Millisecond, d)

	_, err = parseProbeDuration([]byte(`{"format":{}}`))
	assert.Error(t, err)
	_, err = parseProbeDuration([]byte(`{"streams": [invalid json`))
	assert.Error(t, err)
}

func TestProbeCommandFor(t *testing.T) {
	assert.Equal(t, "ffprobe", probeCommandFor("ffmpeg"))
	assert.Equal(t, "/opt/bin/ffprobe", probeCommandFor("/opt/bin/ffmpeg"))
	assert.Equal(t, "ffprobe", probeCommandFor("avconv"))
}

func TestOverlayText(t *testing.T) {
	assert.Equal(t, "BEACH DAY", overlayTitle(" Beach day "))
	long := overlayTitle(strings.Repeat("a", 60))
	assert.Len(t, []rune(long), maxTitle)
	assert.True(t, strings.HasSuffix(long, "…"))

	assert.Equal(t, "#a #b #c", overlayTags([]string{"#a", "#b", "#c", "#d"}))
	assert.Equal(t, "", overlayTags(nil))
}

func TestFfmpegColor(t *testing.T) {
	assert.Equal(t, "0x6d8cff", ffmpegColor("#6d8cff"))
	assert.Equal(t, "black", ffmpegColor(""))
	assert.Equal(t, "red", ffmpegColor("red"))
}

func TestEscapeFilterValue(t *testing.T) {
	assert.Equal(t, `C\:\\tmp\\it'\''s.txt`, escapeFilterValue(`C:\tmp\it's.txt`))
}
