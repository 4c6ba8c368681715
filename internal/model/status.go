package model

import (
	"strconv"
	"time"
)

// JobStatus is the externally visible state of a job
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"

	// JobStatusNotFound is only ever rendered to clients, never stored.
	JobStatusNotFound JobStatus = "not_found"
)

// IsTerminal reports whether no further transition can happen except deletion
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// StatusRecord is the mutable, expiring record describing a job's outcome
type StatusRecord struct {
	JobID      string     `json:"jobId"`
	UserID     string     `json:"userId,omitempty"`
	Status     JobStatus  `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
	ResultURL  string     `json:"resultUrl,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// NewProcessingRecord builds the record written when a pipeline starts
func NewProcessingRecord(jobID, userID string, now time.Time) *StatusRecord {
	return &StatusRecord{
		JobID:     jobID,
		UserID:    userID,
		Status:    JobStatusProcessing,
		CreatedAt: now,
	}
}

// Complete returns the terminal success record derived from r
func (r StatusRecord) Complete(resultURL string, now time.Time) *StatusRecord {
	r.Status = JobStatusCompleted
	r.ResultURL = resultURL
	r.Error = ""
	r.FinishedAt = &now
	return &r
}

// Fail returns the terminal failure record derived from r
func (r StatusRecord) Fail(errMsg string, now time.Time) *StatusRecord {
	if errMsg == "" {
		errMsg = "unknown error"
	}
	r.Status = JobStatusFailed
	r.Error = errMsg
	r.ResultURL = ""
	r.FinishedAt = &now
	return &r
}

// Hash field names used by the status store
const (
	FieldJobID      = "jobId"
	FieldUserID     = "userId"
	FieldStatus     = "status"
	FieldCreatedAt  = "createdAt"
	FieldFinishedAt = "finishedAt"
	FieldResultURL  = "resultUrl"
	FieldError      = "error"
)

// Fields flattens the record into string fields. Timestamps are unix milliseconds.
// Empty optional fields are omitted.
func (r *StatusRecord) Fields() map[string]string {
	fields := map[string]string{
		FieldJobID:     r.JobID,
		FieldStatus:    string(r.Status),
		FieldCreatedAt: strconv.FormatInt(r.CreatedAt.UnixMilli(), 10),
	}
	if r.UserID != "" {
		fields[FieldUserID] = r.UserID
	}
	if r.FinishedAt != nil {
		fields[FieldFinishedAt] = strconv.FormatInt(r.FinishedAt.UnixMilli(), 10)
	}
	if r.ResultURL != "" {
		fields[FieldResultURL] = r.ResultURL
	}
	if r.Error != "" {
		fields[FieldError] = r.Error
	}
	return fields
}

// StatusRecordFromFields is the inverse of Fields. Unparseable timestamps are left zero.
func StatusRecordFromFields(fields map[string]string) *StatusRecord {
	r := &StatusRecord{
		JobID:     fields[FieldJobID],
		UserID:    fields[FieldUserID],
		Status:    JobStatus(fields[FieldStatus]),
		ResultURL: fields[FieldResultURL],
		Error:     fields[FieldError],
	}
	if t, ok := parseMillis(fields[FieldCreatedAt]); ok {
		r.CreatedAt = t
	}
	if t, ok := parseMillis(fields[FieldFinishedAt]); ok {
		r.FinishedAt = &t
	}
	return r
}

func parseMillis(v string) (time.Time, bool) {
	if v == "" {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// NotFoundResponse is rendered for unknown, expired or deleted jobs
type NotFoundResponse struct {
	Status  JobStatus `json:"status"`
	Message string    `json:"message"`
}

// StatusResponse is the JSON body of a status read. Timestamps are unix
// milliseconds and omitted when unknown.
type StatusResponse struct {
	JobID      string    `json:"jobId"`
	UserID     string    `json:"userId,omitempty"`
	Status     JobStatus `json:"status"`
	CreatedAt  int64     `json:"createdAt,omitempty"`
	FinishedAt int64     `json:"finishedAt,omitempty"`
	ResultURL  string    `json:"resultUrl,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Response renders the record for clients
func (r *StatusRecord) Response() StatusResponse {
	resp := StatusResponse{
		JobID:     r.JobID,
		UserID:    r.UserID,
		Status:    r.Status,
		ResultURL: r.ResultURL,
		Error:     r.Error,
	}
	if !r.CreatedAt.IsZero() {
		resp.CreatedAt = r.CreatedAt.UnixMilli()
	}
	if r.FinishedAt != nil {
		resp.FinishedAt = r.FinishedAt.UnixMilli()
	}
	return resp
}
