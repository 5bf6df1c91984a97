package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Server is a guild the authenticated user can reach
type Server struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channel is a text-capable channel of a server
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

// Attachment is a file attached to a message
type Attachment struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

// IsImage reports whether the attachment is rendered inline as an image
func (a Attachment) IsImage() bool {
	return isImage(a.Filename)
}

// Embed is a rich embed block, passed through to themes without interpretation
type Embed map[string]any

// Message is one retrieved chat entry. Messages are never modified after the
// history fetcher creates them.
type Message struct {
	ID           string       `json:"id"`
	AuthorName   string       `json:"author_name"`
	AuthorAvatar string       `json:"author_avatar,omitempty"`
	Timestamp    time.Time    `json:"timestamp"`
	Content      string       `json:"content"`
	Attachments  []Attachment `json:"attachments"`
	Embeds       []Embed      `json:"embeds"`
}

// ArchiveJob is one server, channel set and theme selected by the operator
type ArchiveJob struct {
	ID        string
	Server    Server
	Channels  []Channel
	ThemePath string
	OutputDir string
	CreatedAt time.Time
}

// NewArchiveJob creates a job writing under root/discord_archive_{server id}
func NewArchiveJob(root string, server Server, channels []Channel, themePath string) *ArchiveJob {
	return &ArchiveJob{
		ID:        uuid.NewString(),
		Server:    server,
		Channels:  channels,
		ThemePath: themePath,
		OutputDir: filepath.Join(root, archiveDirName(server.ID)),
		CreatedAt: time.Now(),
	}
}

// OutputPath returns the HTML file for a channel of this job
func (j *ArchiveJob) OutputPath(channel Channel) string {
	return filepath.Join(j.OutputDir, archiveFileName(channel.Name, ".html"))
}

func archiveDirName(serverID string) string {
	return fmt.Sprintf("discord_archive_%s", serverID)
}

// archiveFileName keeps the channel name but strips path separators so a
// channel can never write outside the archive directory.
func archiveFileName(channelName, ext string) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(channelName)
	if name == "" || name == "." || name == ".." {
		name = "channel"
	}
	return name + "_archive" + ext
}

// ChannelStatus represents the outcome of archiving one channel
type ChannelStatus string

const (
	StatusSuccess ChannelStatus = "success"
	StatusSkipped ChannelStatus = "skipped"
	StatusError   ChannelStatus = "error"
)

// ChannelResult tracks the outcome of archiving each channel
type ChannelResult struct {
	Channel  Channel
	Status   ChannelStatus
	Messages int
	Filename string
	Error    error
}

// Severity is the kind of a console log line
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeveritySuccess Severity = "success"
)

// PanelStyle is the border color of a console panel
type PanelStyle string

const (
	StyleInfo  PanelStyle = "blue"
	StyleError PanelStyle = "red"
)

// UnknownTotal is passed as the total of a channel progress update when the
// number of messages is not known yet.
const UnknownTotal = -1
