package main

import (
	"strings"
	"testing"
)

func TestIsImage(t *testing.T) {
	tests := []struct {
		filename string
		expected bool
	}{
		{"PHOTO.PNG", true},
		{"cat.jpg", true},
		{"cat.JPEG", true},
		{"anim.gif", true},
		{"sticker.webp", true},
		{"notes.txt", false},
		{"archive.tar.gz", false},
		{"png", false},
		{"image.png.exe", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := isImage(tt.filename); got != tt.expected {
				t.Errorf("isImage(%q) = %v, want %v", tt.filename, got, tt.expected)
			}
			if got := (Attachment{Filename: tt.filename}).IsImage(); got != tt.expected {
				t.Errorf("Attachment.IsImage() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReplaceSpoilers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"single", "a ||secret|| b", `a <span class="spoiler">secret</span> b`},
		{"two pairs", "||x|| and ||y||", `<span class="spoiler">x</span> and <span class="spoiler">y</span>`},
		{"unmatched", "a || b", "a || b"},
		{"empty pair", "||||", "||||"},
		{"no markers", "plain text", "plain text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := replaceSpoilers(tt.input); got != tt.expected {
				t.Errorf("replaceSpoilers(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestMarkupConverterConvert(t *testing.T) {
	c := NewMarkupConverter("")

	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "spoiler around plain text",
			input:    "a ||secret|| b",
			contains: []string{`<p>a <span class="spoiler">secret</span> b</p>`},
		},
		{
			name:     "markdown inside spoiler",
			input:    "||**bold**||",
			contains: []string{`<span class="spoiler"><strong>bold</strong></span>`},
		},
		{
			name:     "strikethrough",
			input:    "~~gone~~",
			contains: []string{"<del>gone</del>"},
		},
		{
			name:     "bare link",
			input:    "see https://example.com now",
			contains: []string{`href="https://example.com"`},
		},
		{
			name:     "fenced code is highlighted with classes",
			input:    "```go\nfunc main() {}\n```",
			contains: []string{`class="chroma"`, "func"},
			excludes: []string{"style="},
		},
		{
			name:     "script is removed",
			input:    "<script>alert(1)</script>hello",
			contains: []string{"hello"},
			excludes: []string{"<script", "alert(1)</script>"},
		},
		{
			name:     "event handlers are removed",
			input:    `<img src="x" onerror="alert(1)">`,
			excludes: []string{"onerror"},
		},
		{
			name:     "line breaks are kept",
			input:    "one\ntwo",
			contains: []string{"<br"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Convert(tt.input)
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			for _, want := range tt.contains {
				if !strings.Contains(got, want) {
					t.Errorf("Convert(%q) = %q, want it to contain %q", tt.input, got, want)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(got, unwanted) {
					t.Errorf("Convert(%q) = %q, must not contain %q", tt.input, got, unwanted)
				}
			}
		})
	}
}
