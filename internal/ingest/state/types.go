// Package state provides durable, concurrency-safe storage for ingest job
// records. All job state lives in one in-memory map mirrored to a snapshot
// file that is atomically replaced on every mutation.
package state

import "time"

// Status is the coarse lifecycle state of an ingest job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// Stage is the fine-grained pipeline position of an ingest job.
type Stage string

const (
	StageQueued        Stage = "queued"
	StageValidate      Stage = "validate"
	StageTranscodeMezz Stage = "transcode_mezz"
	StageMakeProxy     Stage = "make_proxy"
	StageThumbs        Stage = "thumbs"
	StageReady         Stage = "ready"
	StageError         Stage = "error"
)

// StageProgress maps each successful stage boundary to its progress value.
var StageProgress = map[Stage]int{
	StageValidate:      5,
	StageTranscodeMezz: 60,
	StageMakeProxy:     80,
	StageThumbs:        95,
	StageReady:         100,
}

// Assets holds the derived asset locations for a job. Each field becomes
// non-nil only once its producing stage completes and never reverts to nil.
type Assets struct {
	OriginalURL  *string `json:"original_url"`
	MezzanineURL *string `json:"mezzanine_url"`
	ProxyURL     *string `json:"proxy_url"`
	ThumbsGlob   *string `json:"thumbs_glob"`
	KeyframesCSV *string `json:"keyframes_csv"`
}

// merge applies the non-nil fields of patch onto a. Nil patch fields leave
// the existing values untouched, which is what keeps assets from reverting.
func (a *Assets) merge(patch Assets) {
	if patch.OriginalURL != nil {
		a.OriginalURL = patch.OriginalURL
	}
	if patch.MezzanineURL != nil {
		a.MezzanineURL = patch.MezzanineURL
	}
	if patch.ProxyURL != nil {
		a.ProxyURL = patch.ProxyURL
	}
	if patch.ThumbsGlob != nil {
		a.ThumbsGlob = patch.ThumbsGlob
	}
	if patch.KeyframesCSV != nil {
		a.KeyframesCSV = patch.KeyframesCSV
	}
}

func (a Assets) clone() Assets {
	return Assets{
		OriginalURL:  cloneString(a.OriginalURL),
		MezzanineURL: cloneString(a.MezzanineURL),
		ProxyURL:     cloneString(a.ProxyURL),
		ThumbsGlob:   cloneString(a.ThumbsGlob),
		KeyframesCSV: cloneString(a.KeyframesCSV),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Job is one ingest job record, one per uploaded asset.
type Job struct {
	UploadID  string     `json:"upload_id"`
	Status    Status     `json:"status"`
	Stage     Stage      `json:"stage"`
	Progress  int        `json:"progress"`
	Message   string     `json:"message,omitempty"`
	Assets    Assets     `json:"assets"`
	StartedAt *time.Time `json:"started_at,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (j Job) clone() Job {
	cloned := j
	cloned.Assets = j.Assets.clone()
	if j.StartedAt != nil {
		t := *j.StartedAt
		cloned.StartedAt = &t
	}
	return cloned
}

// Meta records where a job's source asset lives so it can be relocated
// across a process restart.
type Meta struct {
	OriginalPath string `json:"original_path"`
	OriginalURL  string `json:"original_url"`
}

// Update is a partial job mutation. Nil fields are left untouched.
// ClearMessage removes a previous diagnostic; it wins over Message.
type Update struct {
	Status       *Status
	Stage        *Stage
	Progress     *int
	Message      *string
	ClearMessage bool
	Assets       *Assets
}
