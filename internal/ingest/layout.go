// Package ingest drives uploaded match video through the transcode pipeline:
// validation, mezzanine and proxy transcodes, thumbnails, and keyframe
// metadata, with durable job state between stages.
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
)

// AllowedExtensions lists the upload extensions the pipeline accepts, in the
// order used when scanning for an on-disk original.
var AllowedExtensions = []string{".avi", ".m2ts", ".mkv", ".mov", ".mp4", ".mts", ".webm"}

// ExtensionAllowed reports whether ext (including the leading dot, any case)
// is an accepted upload extension.
func ExtensionAllowed(ext string) bool {
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Layout maps upload ids to the directory-per-concern tree under the data
// root. Derived assets are namespaced by upload id so concurrent jobs never
// touch the same files.
type Layout struct {
	Root string
}

func (l Layout) OriginalDir() string { return filepath.Join(l.Root, "original") }
func (l Layout) MezzDir() string     { return filepath.Join(l.Root, "mezz") }
func (l Layout) ProxyDir() string    { return filepath.Join(l.Root, "proxy") }
func (l Layout) ThumbsDir() string   { return filepath.Join(l.Root, "thumbs") }
func (l Layout) MetaDir() string     { return filepath.Join(l.Root, "meta") }
func (l Layout) CalibDir() string    { return filepath.Join(l.Root, "calib") }

func (l Layout) AnnotationsDir() string {
	return filepath.Join(l.Root, "ann")
}

// StatePath is the canonical ingest snapshot file.
func (l Layout) StatePath() string {
	return filepath.Join(l.Root, "state", "ingest_jobs.json")
}

func (l Layout) OriginalPath(uploadID, ext string) string {
	return filepath.Join(l.OriginalDir(), uploadID+ext)
}

func (l Layout) MezzPath(uploadID string) string {
	return filepath.Join(l.MezzDir(), uploadID+".mp4")
}

func (l Layout) ProxyPath(uploadID string) string {
	return filepath.Join(l.ProxyDir(), uploadID+".mp4")
}

func (l Layout) JobThumbsDir(uploadID string) string {
	return filepath.Join(l.ThumbsDir(), uploadID)
}

func (l Layout) KeyframesPath(uploadID string) string {
	return filepath.Join(l.MetaDir(), uploadID, "keyframes.csv")
}

// EnsureDirs creates the shared directories up front so handlers and workers
// can assume they exist.
func (l Layout) EnsureDirs() error {
	dirs := []string{
		l.OriginalDir(), l.MezzDir(), l.ProxyDir(), l.ThumbsDir(),
		l.MetaDir(), l.CalibDir(), l.AnnotationsDir(), filepath.Dir(l.StatePath()),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// FindOriginal scans the original directory for an upload id across the
// allowed extensions and returns the first match.
func (l Layout) FindOriginal(uploadID string) (path, ext string, ok bool) {
	for _, candidate := range AllowedExtensions {
		p := l.OriginalPath(uploadID, candidate)
		if _, err := os.Stat(p); err == nil {
			return p, candidate, true
		}
	}
	return "", "", false
}

// AssetURLs are the client-facing locations of a job's derived assets,
// served from the data root under /assets.
type AssetURLs struct {
	Mezzanine    string
	Proxy        string
	ThumbsGlob   string
	KeyframesCSV string
}

// URLsFor builds the asset URL set for one upload id.
func URLsFor(uploadID string) AssetURLs {
	return AssetURLs{
		Mezzanine:    fmt.Sprintf("/assets/mezz/%s.mp4", uploadID),
		Proxy:        fmt.Sprintf("/assets/proxy/%s.mp4", uploadID),
		ThumbsGlob:   fmt.Sprintf("/assets/thumbs/%s/thumb_%%04d.jpg", uploadID),
		KeyframesCSV: fmt.Sprintf("/assets/meta/%s/keyframes.csv", uploadID),
	}
}

// OriginalURL is the client-facing location of an uploaded source file.
func OriginalURL(uploadID, ext string) string {
	return fmt.Sprintf("/assets/original/%s%s", uploadID, ext)
}
