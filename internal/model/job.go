package model

// JobKind identifies which pipeline a job runs through
type JobKind string

const (
	JobKindClip     JobKind = "clip"
	JobKindPlaylist JobKind = "playlist"
)

// Valid reports whether k is a known job kind
func (k JobKind) Valid() bool {
	return k == JobKindClip || k == JobKindPlaylist
}

// ClipJobRequest represents the request to extract a clip from a video.
// Times are offsets in seconds from the start of the source video.
type ClipJobRequest struct {
	SourceURL string   `json:"sourceUrl" validate:"required,url"`
	StartTime *float64 `json:"startTime" validate:"required,gte=0"`
	EndTime   *float64 `json:"endTime" validate:"required,gt=0"`
	UserID    string   `json:"userId" validate:"required"`
}

// PlaylistJobRequest represents the request to download a playlist's audio tracks
type PlaylistJobRequest struct {
	PlaylistURL string `json:"playlistUrl" validate:"required,url"`
	UserID      string `json:"userId" validate:"required"`
}

// JobAcceptedResponse is returned once a job is durably queued
type JobAcceptedResponse struct {
	JobID string `json:"jobId"`
}

// ClipJobPayload contains the data for a clip job.
// Start and End are already in HH:MM:SS form.
type ClipJobPayload struct {
	SourceURL string `json:"sourceUrl"`
	Start     string `json:"start"`
	End       string `json:"end"`
	UserID    string `json:"userId"`
}

// PlaylistJobPayload contains the data for a playlist job
type PlaylistJobPayload struct {
	PlaylistURL string `json:"playlistUrl"`
	UserID      string `json:"userId"`
}
