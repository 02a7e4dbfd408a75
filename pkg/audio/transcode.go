// Package audio provides local audio transcoding helpers used to normalise
// recorded clips before they are shipped to the speech provider.
package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// RecognitionSampleRate is the sample rate the provider's recognition
// endpoint expects.
const RecognitionSampleRate = 16000

// TranscodeForRecognition converts the audio file at path into the fixed
// recognition format (mono, 16 kHz, 16-bit PCM WAV) using ffmpeg and returns
// the path of the converted file in tmpDir. An empty tmpDir falls back to
// the system temp directory.
//
// The process is bounded by ctx; cancellation kills ffmpeg.
func TranscodeForRecognition(ctx context.Context, path string, tmpDir string) (string, error) {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	out := filepath.Join(tmpDir, base+"_16k_mono.wav")

	cmd := exec.CommandContext(ctx, "ffmpeg", transcodeArgs(path, out)...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("audio: ffmpeg transcode %q: %w (%s)", path, err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}

// transcodeArgs builds the ffmpeg argument list for a recognition transcode.
// Split out so tests can verify the flags without invoking ffmpeg.
func transcodeArgs(in, out string) []string {
	return []string{
		"-y", "-i", in,
		"-ac", "1",
		"-ar", "16000",
		"-sample_fmt", "s16",
		"-f", "wav",
		out,
	}
}
