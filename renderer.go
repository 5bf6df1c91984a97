package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/flosch/pongo2/v6"
	"github.com/rs/zerolog"
)

const templateName = "channel.html"

// Tags that read from outside the theme loader
var bannedTags = []string{"ssi"}

// themeLoader resolves template names inside a single theme directory.
// os.Root rejects absolute paths, ".." escapes and symlinks leading out of it.
type themeLoader struct {
	root *os.Root
}

func (l *themeLoader) Abs(base, name string) string {
	return path.Clean(strings.TrimPrefix(name, "/"))
}

func (l *themeLoader) Get(name string) (io.Reader, error) {
	f, err := l.root.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

// RendererOption configures a Renderer
type RendererOption func(*Renderer)

// WithJob adds the job metadata (server, archive id, time) to the template context
func WithJob(job *ArchiveJob) RendererOption {
	return func(r *Renderer) { r.job = job }
}

// WithMarkdownExport also writes a Markdown transcript next to each HTML file
func WithMarkdownExport(enabled bool) RendererOption {
	return func(r *Renderer) {
		if enabled {
			r.mdConverter = md.NewConverter("", true, nil)
		}
	}
}

// WithRendererLogger sets the diagnostic logger
func WithRendererLogger(log zerolog.Logger) RendererOption {
	return func(r *Renderer) { r.log = log }
}

// Renderer turns a channel's messages into an HTML file using a theme
type Renderer struct {
	themePath   string
	markup      *MarkupConverter
	job         *ArchiveJob
	mdConverter *md.Converter
	log         zerolog.Logger
}

// NewRenderer creates a renderer for the theme directory at themePath
func NewRenderer(themePath string, opts ...RendererOption) (*Renderer, error) {
	if themePath == "" {
		return nil, errors.New("path to the theme cannot be empty")
	}

	r := &Renderer{
		themePath: themePath,
		markup:    NewMarkupConverter(""),
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Render writes the HTML archive of one channel to outputPath, replacing any
// existing file.
func (r *Renderer) Render(channel Channel, messages []Message, outputPath string) error {
	tpl, err := r.loadTemplate()
	if err != nil {
		return err
	}

	records, err := r.messageRecords(messages)
	if err != nil {
		return &RenderError{Theme: r.themePath, Reason: ErrRenderInternal, Err: err}
	}

	ctx := pongo2.Context{
		"channel_name":  channel.Name,
		"messages":      records,
		"message_count": len(records),
	}
	if r.job != nil {
		ctx["server_name"] = r.job.Server.Name
		ctx["archive_id"] = r.job.ID
		ctx["archived_at"] = r.job.CreatedAt.UTC().Format(time.DateTime) + " UTC"
	}

	var buf bytes.Buffer
	if err := tpl.ExecuteWriter(ctx, &buf); err != nil {
		return &RenderError{Theme: r.themePath, Reason: ErrRenderInternal, Err: fmt.Errorf("executing template: %w", err)}
	}

	if err := os.WriteFile(outputPath, buf.Bytes(), 0644); err != nil {
		return &RenderError{Theme: r.themePath, Reason: ErrRenderInternal, Err: fmt.Errorf("writing %s: %w", outputPath, err)}
	}

	if r.mdConverter != nil {
		if err := r.writeMarkdown(buf.String(), outputPath); err != nil {
			r.log.Warn().Err(err).Str("channel", channel.Name).Msg("Failed to write markdown transcript")
		}
	}

	r.log.Debug().Str("channel", channel.Name).Str("path", outputPath).Int("messages", len(records)).Msg("Rendered channel")
	return nil
}

// loadTemplate parses channel.html in a fresh sandboxed set. Templates only
// see the theme directory and the data passed to them.
func (r *Renderer) loadTemplate() (*pongo2.Template, error) {
	root, err := os.OpenRoot(r.themePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &RenderError{Theme: r.themePath, Reason: ErrTemplateNotFound, Err: err}
		}
		return nil, &RenderError{Theme: r.themePath, Reason: ErrRenderInternal, Err: err}
	}
	defer root.Close()

	if _, err := root.Stat(templateName); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &RenderError{Theme: r.themePath, Reason: ErrTemplateNotFound, Err: err}
		}
		return nil, &RenderError{Theme: r.themePath, Reason: ErrRenderInternal, Err: err}
	}

	set := pongo2.NewSet("theme", &themeLoader{root: root})
	for _, tag := range bannedTags {
		if err := set.BanTag(tag); err != nil {
			return nil, &RenderError{Theme: r.themePath, Reason: ErrRenderInternal, Err: err}
		}
	}

	tpl, err := set.FromFile(templateName)
	if err != nil {
		return nil, &RenderError{Theme: r.themePath, Reason: ErrRenderInternal, Err: fmt.Errorf("parsing template: %w", err)}
	}
	return tpl, nil
}

// messageRecords builds the per-message values themes iterate over
func (r *Renderer) messageRecords(messages []Message) ([]map[string]any, error) {
	records := make([]map[string]any, 0, len(messages))
	for _, msg := range messages {
		content, err := r.markup.Convert(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", msg.ID, err)
		}

		attachments := make([]map[string]any, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			attachments = append(attachments, map[string]any{
				"filename": a.Filename,
				"url":      a.URL,
				"is_image": a.IsImage(),
			})
		}

		embeds := make([]map[string]any, 0, len(msg.Embeds))
		for _, e := range msg.Embeds {
			embeds = append(embeds, e)
		}

		var avatar any
		if msg.AuthorAvatar != "" {
			avatar = msg.AuthorAvatar
		}

		records = append(records, map[string]any{
			"author_name":   msg.AuthorName,
			"author_avatar": avatar,
			"timestamp":     msg.Timestamp,
			"time":          msg.Timestamp.UTC().Format(time.DateTime),
			"content":       content,
			"attachments":   attachments,
			"embeds":        embeds,
		})
	}
	return records, nil
}

func (r *Renderer) writeMarkdown(document, outputPath string) error {
	markdown, err := r.mdConverter.ConvertString(document)
	if err != nil {
		return fmt.Errorf("converting HTML to markdown: %w", err)
	}
	mdPath := strings.TrimSuffix(outputPath, ".html") + ".md"
	return os.WriteFile(mdPath, []byte(markdown), 0644)
}
