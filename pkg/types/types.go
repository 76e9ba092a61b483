package types

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// InputScope defines the granularity a processing step operates on
type InputScope string

const (
	ScopeDataset InputScope = "dataset"
	ScopeConfig  InputScope = "config"
	ScopeSplit   InputScope = "split"
)

// Priority defines job scheduling priority (higher wins)
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Rank returns the numeric rank of a priority for ordering
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityNormal:
		return 1
	default:
		return 0
	}
}

// Raise returns the higher of the two priorities. Priorities are only
// ever raised, never lowered, on queue upsert.
func (p Priority) Raise(other Priority) Priority {
	if other.Rank() > p.Rank() {
		return other
	}
	return p
}

// JobStatus represents the lifecycle state of a job record
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusStarted   JobStatus = "started"
	JobStatusSuccess   JobStatus = "success"
	JobStatusError     JobStatus = "error"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusSkipped   JobStatus = "skipped"
)

// IsPending reports whether a job still occupies its key's in-flight slot
func (s JobStatus) IsPending() bool {
	return s == JobStatusWaiting || s == JobStatusStarted
}

// IsFinal reports whether a job has reached a terminal state
func (s JobStatus) IsFinal() bool {
	return !s.IsPending()
}

// ArtifactKey is the canonical identifier of a step output. Config is set
// iff the step's scope is config or split; Split iff split.
type ArtifactKey struct {
	Kind    string `json:"kind"`
	Dataset string `json:"dataset"`
	Config  string `json:"config,omitempty"`
	Split   string `json:"split,omitempty"`
}

// String renders the key in its canonical form
func (k ArtifactKey) String() string {
	return fmt.Sprintf("%s,%s,%s,%s", k.Kind, k.Dataset, k.Config, k.Split)
}

// Compare orders keys lexicographically on (kind, dataset, config, split)
func (k ArtifactKey) Compare(other ArtifactKey) int {
	if c := strings.Compare(k.Kind, other.Kind); c != 0 {
		return c
	}
	if c := strings.Compare(k.Dataset, other.Dataset); c != 0 {
		return c
	}
	if c := strings.Compare(k.Config, other.Config); c != 0 {
		return c
	}
	return strings.Compare(k.Split, other.Split)
}

// Namespace returns the user/organization prefix of the dataset name,
// used for fairness accounting. Datasets without a prefix form their
// own namespace.
func (k ArtifactKey) Namespace() string {
	return Namespace(k.Dataset)
}

// Namespace extracts the namespace from a dataset name
func Namespace(dataset string) string {
	if idx := strings.IndexByte(dataset, '/'); idx != -1 {
		return dataset[:idx]
	}
	return dataset
}

// CacheEntry is the durable record of a step output (or errored attempt)
type CacheEntry struct {
	Kind      string `json:"kind"`
	Dataset   string `json:"dataset"`
	Config    string `json:"config,omitempty"`
	Split     string `json:"split,omitempty"`
	KeyDigest string `json:"key_digest,omitempty"`

	Content          []byte  `json:"content,omitempty"`
	HTTPStatus       int     `json:"http_status"`
	ErrorCode        string  `json:"error_code,omitempty"`
	Details          []byte  `json:"details,omitempty"`
	Progress         float64 `json:"progress"`
	JobRunnerVersion int     `json:"job_runner_version"`
	DatasetRevision  string  `json:"dataset_git_revision,omitempty"`
	Attempts         int     `json:"attempts"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Key returns the entry's artifact key
func (e *CacheEntry) Key() ArtifactKey {
	return ArtifactKey{Kind: e.Kind, Dataset: e.Dataset, Config: e.Config, Split: e.Split}
}

// IsSuccess reports whether the entry holds a successful response
func (e *CacheEntry) IsSuccess() bool {
	return e.HTTPStatus > 0 && e.HTTPStatus < http.StatusBadRequest
}

// CacheHeader is the cheap variant of a cache entry without the content
// blob, used by hot paths that only need status/revision/version/progress.
type CacheHeader struct {
	Kind             string    `json:"kind"`
	Dataset          string    `json:"dataset"`
	Config           string    `json:"config,omitempty"`
	Split            string    `json:"split,omitempty"`
	HTTPStatus       int       `json:"http_status"`
	ErrorCode        string    `json:"error_code,omitempty"`
	Progress         float64   `json:"progress"`
	JobRunnerVersion int       `json:"job_runner_version"`
	DatasetRevision  string    `json:"dataset_git_revision,omitempty"`
	Attempts         int       `json:"attempts"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// IsSuccess reports whether the header belongs to a successful entry
func (h *CacheHeader) IsSuccess() bool {
	return h.HTTPStatus > 0 && h.HTTPStatus < http.StatusBadRequest
}

// Header strips the content blob from a cache entry
func (e *CacheEntry) Header() *CacheHeader {
	return &CacheHeader{
		Kind:             e.Kind,
		Dataset:          e.Dataset,
		Config:           e.Config,
		Split:            e.Split,
		HTTPStatus:       e.HTTPStatus,
		ErrorCode:        e.ErrorCode,
		Progress:         e.Progress,
		JobRunnerVersion: e.JobRunnerVersion,
		DatasetRevision:  e.DatasetRevision,
		Attempts:         e.Attempts,
		UpdatedAt:        e.UpdatedAt,
	}
}

// Job is a durable job record in the queue
type Job struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Dataset  string `json:"dataset"`
	Config   string `json:"config,omitempty"`
	Split    string `json:"split,omitempty"`
	Revision string `json:"revision"`

	Priority   Priority  `json:"priority"`
	Difficulty int       `json:"difficulty"`
	Status     JobStatus `json:"status"`
	Attempts   int       `json:"attempts"`

	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at,omitempty"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
	OwnerID         string     `json:"owner_id,omitempty"`
}

// Key returns the job's artifact key
func (j *Job) Key() ArtifactKey {
	return ArtifactKey{Kind: j.Kind, Dataset: j.Dataset, Config: j.Config, Split: j.Split}
}

// Namespace returns the job's dataset namespace for fairness accounting
func (j *Job) Namespace() string {
	return Namespace(j.Dataset)
}

// HubEventType represents the type of a hub-side change notification
type HubEventType string

const (
	HubEventAdd          HubEventType = "add"
	HubEventUpdate       HubEventType = "update"
	HubEventMove         HubEventType = "move"
	HubEventRemove       HubEventType = "remove"
	HubEventDoesNotExist HubEventType = "doesnotexist"
)

// WebhookPayload is the body POSTed by the hub on repository changes
type WebhookPayload struct {
	Event   HubEventType `json:"event"`
	Repo    WebhookRepo  `json:"repo"`
	MovedTo string       `json:"movedTo,omitempty"`
}

// WebhookRepo identifies the repository a webhook refers to
type WebhookRepo struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	GitalyUID string `json:"gitalyUid,omitempty"`
}

// SplitKey identifies a (dataset, config, split) combination discovered
// by a step that produces splits
type SplitKey struct {
	Dataset string `json:"dataset"`
	Config  string `json:"config"`
	Split   string `json:"split"`
}

// ConfigNamesContent is the content shape of dataset-config-names
type ConfigNamesContent struct {
	ConfigNames []ConfigNameItem `json:"config_names"`
}

// ConfigNameItem is one entry of a config list
type ConfigNameItem struct {
	Dataset string `json:"dataset"`
	Config  string `json:"config"`
}

// SplitNamesContent is the content shape of the split-names steps
type SplitNamesContent struct {
	SplitNames []SplitNameItem `json:"split_names"`
}

// SplitNameItem is one entry of a split list
type SplitNameItem struct {
	Dataset string `json:"dataset"`
	Config  string `json:"config"`
	Split   string `json:"split"`
}
