package models

import "os"

// SourceType is the kind of chat an event came from
type SourceType string

const (
	SourceGroup   SourceType = "group"
	SourceUser    SourceType = "user"
	SourceChannel SourceType = "channel"
)

// MessageKind is the content type of an inbound message
type MessageKind string

const (
	MessageText  MessageKind = "text"
	MessageImage MessageKind = "image"
	MessageVideo MessageKind = "video"
	MessageAudio MessageKind = "audio"
	MessageFile  MessageKind = "file"
	MessageOther MessageKind = "other"
)

// ReplyToken is an opaque handle the messenger uses to answer an event
type ReplyToken string

// Source describes where an event came from
type Source struct {
	Type      SourceType
	GroupID   string
	GroupName string
	UserID    string
}

// IsGroup returns true if the event came from a group chat
func (s Source) IsGroup() bool {
	return s.Type == SourceGroup && s.GroupID != ""
}

// Group returns the group identity carried by the source
func (s Source) Group() Group {
	name := s.GroupName
	if name == "" {
		name = s.GroupID
	}
	return Group{GroupID: s.GroupID, GroupName: name}
}

// JoinEvent is emitted when the bot is added to a chat
type JoinEvent struct {
	Source     Source
	ReplyToken ReplyToken
}

// LeaveEvent is emitted when the bot leaves or is removed from a chat
type LeaveEvent struct {
	Source Source
}

// Message is the content of an inbound message
type Message struct {
	Kind      MessageKind
	Text      string
	ContentID string
}

// MessageEvent is emitted for every message the bot can see
type MessageEvent struct {
	Source     Source
	Message    Message
	ReplyToken ReplyToken
}

// Blob is downloaded message content stored in a local file
type Blob struct {
	Path        string
	ContentType string
	Extension   string
	Size        int64
}

// Remove deletes the local file holding the blob
func (b *Blob) Remove() error {
	return os.Remove(b.Path)
}

// MigrateEvent is emitted when a group moves to a new id, as when a group
// is upgraded to a supergroup
type MigrateEvent struct {
	Source     Source
	NewGroupID string
}
