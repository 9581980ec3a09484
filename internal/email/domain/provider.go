package domain

import (
	"context"
	"time"
)

// SyncWindow selects which slice of the remote mailbox a sync run covers.
type SyncWindow struct {
	Mode       WindowMode
	Days       int    // WindowRecent
	SinceToken string // WindowIncremental
}

// WindowMode enumerates the supported sync window kinds
type WindowMode string

const (
	WindowRecent      WindowMode = "recent"
	WindowAll         WindowMode = "all"
	WindowIncremental WindowMode = "incremental"
)

// Recent returns a window covering the last n days
func Recent(days int) SyncWindow {
	return SyncWindow{Mode: WindowRecent, Days: days}
}

// All returns a window covering the whole mailbox
func All() SyncWindow {
	return SyncWindow{Mode: WindowAll}
}

// Incremental returns a window of changes after the given provider token
func Incremental(token string) SyncWindow {
	return SyncWindow{Mode: WindowIncremental, SinceToken: token}
}

// MessageRef is a lightweight pointer to a remote message
type MessageRef struct {
	RemoteID string
}

// RawAttachment describes an attachment as fetched from the provider.
// Data may be nil when the provider failed to download the content; the
// descriptor is still persisted so the failure is visible.
type RawAttachment struct {
	RemoteID    string
	Filename    string
	ContentType string
	Size        int64
	Data        []byte
}

// RawMessage is a fetched message before normalization
type RawMessage struct {
	RemoteID    string
	ThreadID    string
	Sender      string
	SenderName  string
	Recipients  []string
	Subject     string
	Snippet     string
	BodyText    string
	BodyHTML    string
	Labels      []string
	IsRead      bool
	ReceivedAt  time.Time
	Attachments []RawAttachment
}

// RefPage is one page of a remote message listing
type RefPage struct {
	Refs      []MessageRef
	NextToken string
}

// MailboxProvider is the narrow interface the sync coordinator consumes.
// Implementations page through message references for a window, fetch full
// content per reference, and download attachment blobs.
type MailboxProvider interface {
	ListRefs(ctx context.Context, window SyncWindow, pageToken string) (*RefPage, error)
	FetchMessage(ctx context.Context, ref MessageRef) (*RawMessage, error)
	FetchAttachment(ctx context.Context, messageRemoteID, attachmentRemoteID string) ([]byte, error)
}

// ChangeLister is an optional MailboxProvider capability: providers with a
// monotonic change token support true incremental sync. Providers without it
// make the coordinator fall back to a recent window with overlap.
type ChangeLister interface {
	ListChangedRefs(ctx context.Context, sinceToken, pageToken string) (*RefPage, string, error)
	LatestChangeToken(ctx context.Context) (string, error)
}
