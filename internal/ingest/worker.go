package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rallysight/rallysight/internal/ingest/state"
)

// ErrNoVideoStream is the validation failure for files with no video track.
var ErrNoVideoStream = errors.New("no video streams detected during validation")

// Worker runs one upload through the full pipeline. Stage transitions are
// strictly sequential: the next stage never begins before the previous
// stage's state update has been persisted.
type Worker struct {
	store   *state.Store
	runner  Runner
	layout  Layout
	ffmpeg  string
	ffprobe string
	useGPU  bool
}

// WorkerConfig carries the tool paths and the hardware-acceleration flag.
type WorkerConfig struct {
	FFmpegPath  string
	FFprobePath string
	UseGPU      bool
}

func NewWorker(store *state.Store, runner Runner, layout Layout, cfg WorkerConfig) *Worker {
	ffmpeg := cfg.FFmpegPath
	if ffmpeg == "" {
		ffmpeg = "ffmpeg"
	}
	ffprobe := cfg.FFprobePath
	if ffprobe == "" {
		ffprobe = "ffprobe"
	}
	return &Worker{
		store:   store,
		runner:  runner,
		layout:  layout,
		ffmpeg:  ffmpeg,
		ffprobe: ffprobe,
		useGPU:  cfg.UseGPU,
	}
}

// Run executes the pipeline for one upload. Any stage failure marks the job
// as errored with a diagnostic message, preserves the progress reached so
// far, and returns the error to the caller. A later Run against the same id
// starts over from validation; redoing work is safe.
func (w *Worker) Run(ctx context.Context, uploadID, srcPath string) (err error) {
	slog.Info("ingest started", "upload_id", uploadID, "src", srcPath)

	progress := 0
	defer func() {
		if err == nil {
			return
		}
		slog.Error("ingest failed", "upload_id", uploadID, "error", err)
		if _, updateErr := w.store.UpdateJob(uploadID, state.Update{
			Status:   ptr(state.StatusError),
			Stage:    ptr(state.StageError),
			Progress: &progress,
			Message:  ptr(diagnostic(err)),
		}); updateErr != nil {
			slog.Error("failed to record ingest error", "upload_id", uploadID, "error", updateErr)
		}
	}()

	// validate
	progress = state.StageProgress[state.StageValidate]
	if _, err = w.store.UpdateJob(uploadID, state.Update{
		Status:       ptr(state.StatusRunning),
		Stage:        ptr(state.StageValidate),
		Progress:     &progress,
		ClearMessage: true,
	}); err != nil {
		return err
	}
	if err = w.validate(ctx, uploadID, srcPath); err != nil {
		return err
	}

	// transcode_mezz
	if _, err = w.store.UpdateJob(uploadID, state.Update{
		Status:   ptr(state.StatusRunning),
		Stage:    ptr(state.StageTranscodeMezz),
		Progress: &progress,
	}); err != nil {
		return err
	}
	mezzPath := w.layout.MezzPath(uploadID)
	if err = w.transcodeMezzanine(ctx, uploadID, srcPath, mezzPath); err != nil {
		return err
	}

	urls := URLsFor(uploadID)
	progress = state.StageProgress[state.StageTranscodeMezz]
	if _, err = w.store.UpdateJob(uploadID, state.Update{
		Status:   ptr(state.StatusRunning),
		Stage:    ptr(state.StageMakeProxy),
		Progress: &progress,
		Assets:   &state.Assets{MezzanineURL: &urls.Mezzanine},
	}); err != nil {
		return err
	}

	// make_proxy
	if err = w.makeProxy(ctx, uploadID, srcPath, w.layout.ProxyPath(uploadID)); err != nil {
		return err
	}
	progress = state.StageProgress[state.StageMakeProxy]
	if _, err = w.store.UpdateJob(uploadID, state.Update{
		Status:   ptr(state.StatusRunning),
		Stage:    ptr(state.StageThumbs),
		Progress: &progress,
		Assets:   &state.Assets{ProxyURL: &urls.Proxy},
	}); err != nil {
		return err
	}

	// thumbs + keyframe metadata, both derived from the mezzanine
	if err = w.extractThumbnails(ctx, uploadID, mezzPath); err != nil {
		return err
	}
	progress = state.StageProgress[state.StageThumbs]
	if _, err = w.store.UpdateJob(uploadID, state.Update{
		Status:   ptr(state.StatusRunning),
		Stage:    ptr(state.StageThumbs),
		Progress: &progress,
	}); err != nil {
		return err
	}
	if err = w.extractKeyframes(ctx, uploadID, mezzPath); err != nil {
		return err
	}

	// ready
	progress = state.StageProgress[state.StageReady]
	if _, err = w.store.UpdateJob(uploadID, state.Update{
		Status:   ptr(state.StatusReady),
		Stage:    ptr(state.StageReady),
		Progress: &progress,
		Assets: &state.Assets{
			MezzanineURL: &urls.Mezzanine,
			ProxyURL:     &urls.Proxy,
			ThumbsGlob:   &urls.ThumbsGlob,
			KeyframesCSV: &urls.KeyframesCSV,
		},
	}); err != nil {
		return err
	}

	slog.Info("ingest complete", "upload_id", uploadID)
	return nil
}

// validate probes the source for stream metadata and requires at least one
// video stream.
func (w *Worker) validate(ctx context.Context, uploadID, srcPath string) error {
	out, err := w.runner.Run(ctx, Command{
		Name:          w.ffprobe,
		Args:          []string{"-v", "error", "-show_streams", "-of", "json", srcPath},
		CaptureStdout: true,
		UploadID:      uploadID,
		Stage:         string(state.StageValidate),
	})
	if err != nil {
		return err
	}

	var probe struct {
		Streams []struct {
			CodecType string `json:"codec_type"`
		} `json:"streams"`
	}
	if len(out) > 0 {
		if err := json.Unmarshal(out, &probe); err != nil {
			return fmt.Errorf("parse ffprobe output: %w", err)
		}
	}
	for _, s := range probe.Streams {
		if s.CodecType == "video" {
			return nil
		}
	}
	return ErrNoVideoStream
}

// transcodeMezzanine produces the high-quality 1080p intermediate: 30fps,
// yuv420p, 10M video with mono 96k AAC audio.
func (w *Worker) transcodeMezzanine(ctx context.Context, uploadID, srcPath, outPath string) error {
	args := []string{"-y"}
	args = append(args, w.hwAccelArgs()...)
	args = append(args, "-i", srcPath, "-vf", "scale=-2:1080,fps=30,format=yuv420p")
	args = append(args, w.videoCodecArgs()...)
	args = append(args,
		"-preset", "p5",
		"-profile:v", "high",
		"-b:v", "10M",
		"-maxrate", "12M",
		"-bufsize", "20M",
		"-g", "60",
		"-c:a", "aac",
		"-b:a", "96k",
		"-ar", "48000",
		"-ac", "1",
		outPath,
	)
	_, err := w.runner.Run(ctx, Command{
		Name:     w.ffmpeg,
		Args:     args,
		UploadID: uploadID,
		Stage:    string(state.StageTranscodeMezz),
	})
	return err
}

// makeProxy produces the 720p video-only preview asset.
func (w *Worker) makeProxy(ctx context.Context, uploadID, srcPath, outPath string) error {
	args := []string{"-y"}
	args = append(args, w.hwAccelArgs()...)
	args = append(args, "-i", srcPath, "-vf", "scale=-2:720,fps=30,format=yuv420p")
	args = append(args, w.videoCodecArgs()...)
	args = append(args,
		"-preset", "p5",
		"-b:v", "4M",
		"-g", "60",
		"-an",
		outPath,
	)
	_, err := w.runner.Run(ctx, Command{
		Name:     w.ffmpeg,
		Args:     args,
		UploadID: uploadID,
		Stage:    string(state.StageMakeProxy),
	})
	return err
}

// extractThumbnails writes one reduced frame per second into the job's
// thumbnail directory.
func (w *Worker) extractThumbnails(ctx context.Context, uploadID, mezzPath string) error {
	dir := w.layout.JobThumbsDir(uploadID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create thumbs directory: %w", err)
	}
	_, err := w.runner.Run(ctx, Command{
		Name: w.ffmpeg,
		Args: []string{
			"-y", "-i", mezzPath,
			"-vf", "fps=1,scale=-2:180",
			filepath.Join(dir, "thumb_%04d.jpg"),
		},
		UploadID: uploadID,
		Stage:    string(state.StageThumbs),
	})
	return err
}

// extractKeyframes probes the mezzanine for per-frame timestamps and picture
// types and stores the tabular output as the job's keyframe metadata.
func (w *Worker) extractKeyframes(ctx context.Context, uploadID, mezzPath string) error {
	out, err := w.runner.Run(ctx, Command{
		Name: w.ffprobe,
		Args: []string{
			"-select_streams", "v",
			"-show_frames",
			"-show_entries", "frame=pkt_pts_time,pict_type",
			"-of", "csv",
			mezzPath,
		},
		CaptureStdout: true,
		UploadID:      uploadID,
		Stage:         string(state.StageThumbs),
	})
	if err != nil {
		return err
	}

	path := w.layout.KeyframesPath(uploadID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create meta directory: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write keyframes csv: %w", err)
	}
	return nil
}

// hwAccelArgs selects the hardware decode path when GPU mode is enabled.
func (w *Worker) hwAccelArgs() []string {
	if w.useGPU {
		return []string{"-hwaccel", "cuda"}
	}
	return nil
}

// videoCodecArgs selects the encoder. Outputs are functionally equivalent
// either way; GPU mode only trades encoder for speed.
func (w *Worker) videoCodecArgs() []string {
	if w.useGPU {
		return []string{"-c:v", "h264_nvenc"}
	}
	return []string{"-c:v", "libx264", "-pix_fmt", "yuv420p"}
}

// diagnostic formats a stage failure for the job record, preferring the
// captured stderr tail when the failure came from a subprocess.
func diagnostic(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Diagnostic()
	}
	return err.Error()
}

func ptr[T any](v T) *T { return &v }
