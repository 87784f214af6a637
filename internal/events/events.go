// Package events converts named backend notifications into typed local
// events and delivers them to per-operation subscribers.
package events

import (
	"time"
)

// Kind enumerates the notifications the orchestration layer understands.
type Kind int

const (
	KindUnknown Kind = iota
	KindEnsureStart
	KindDownloadStart
	KindDownloadProgress
	KindDownloadDone
	KindDownloadError
	KindEnsureDone
	KindExtractProgress
)

var kindNames = map[Kind]string{
	KindEnsureStart:      "ensure.start",
	KindDownloadStart:    "download.start",
	KindDownloadProgress: "download.progress",
	KindDownloadDone:     "download.done",
	KindDownloadError:    "download.error",
	KindEnsureDone:       "ensure.done",
	KindExtractProgress:  "progress",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// SourceExtract is the source of extraction progress notifications.
const SourceExtract = "extract"

// Event is a typed notification. Source is the dependency kind, download
// id or SourceExtract the notification was emitted for.
type Event struct {
	Kind    Kind
	Source  string
	Payload any
	At      time.Time
}

// DownloadStart announces the total size of a download.
type DownloadStart struct {
	Total int64 `json:"total"`
}

// DownloadProgress reports bytes received so far.
type DownloadProgress struct {
	Downloaded int64 `json:"downloaded"`
	Total      int64 `json:"total"`
}

// DownloadError reports a failed download.
type DownloadError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EnsureDone reports the outcome of a dependency install.
type EnsureDone struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// ExtractProgress reports archive extraction progress. It drives UI only.
type ExtractProgress struct {
	Files       int    `json:"files"`
	Bytes       int64  `json:"bytes"`
	TotalBytes  int64  `json:"total_bytes"`
	CurrentFile string `json:"current_file"`
}

// Handler receives matching events. Handlers run on the publisher's
// goroutine and must not block.
type Handler func(Event)
