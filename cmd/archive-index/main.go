package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/flosch/pongo2/v6"
)

const indexName = "index.html"

// channelPage is what the index shows about one archived channel
type channelPage struct {
	File     string
	Channel  string
	Messages int
}

var indexTemplate = pongo2.Must(pongo2.FromString(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ archive }}</title>
<style>
  body { max-width: 720px; margin: 24px auto; font: 15px/1.5 sans-serif; color: #222; }
  td, th { padding: 4px 12px; text-align: left; }
  td.count { text-align: right; color: #666; }
</style>
</head>
<body>
<h1>{{ archive }}</h1>
<table>
<tr><th>Channel</th><th>Messages</th></tr>
{% for p in pages %}
<tr><td><a href="{{ p.File }}">#{{ p.Channel }}</a></td><td class="count">{{ p.Messages }}</td></tr>
{% endfor %}
</table>
</body>
</html>
`))

func main() {
	if len(os.Args) < 3 {
		log.Fatal("Usage: archive-index <build|list> <directory>")
	}

	command := os.Args[1]
	root := os.Args[2]

	archives, err := findArchives(root)
	if err != nil {
		log.Fatal(err)
	}
	if len(archives) == 0 {
		log.Printf("No discord_archive_* directories in %s", root)
		return
	}

	switch command {
	case "build":
		for _, dir := range archives {
			if err := buildIndex(dir); err != nil {
				log.Printf("Error indexing %s: %v", dir, err)
			}
		}
	case "list":
		for _, dir := range archives {
			pages, err := scanArchive(dir)
			if err != nil {
				log.Printf("Error reading %s: %v", dir, err)
				continue
			}
			fmt.Printf("%s\n", filepath.Base(dir))
			for _, p := range pages {
				fmt.Printf("  #%-30s %6d messages  %s\n", p.Channel, p.Messages, p.File)
			}
		}
	default:
		log.Fatalf("Unknown command %q", command)
	}
}

// findArchives returns root itself when it is an archive, otherwise the
// archive directories directly below it.
func findArchives(root string) ([]string, error) {
	if strings.HasPrefix(filepath.Base(filepath.Clean(root)), "discord_archive_") {
		return []string{root}, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", root, err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "discord_archive_") {
			dirs = append(dirs, filepath.Join(root, e.Name()))
		}
	}
	return dirs, nil
}

func scanArchive(dir string) ([]channelPage, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*_archive.html"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	pages := make([]channelPage, 0, len(files))
	for _, file := range files {
		page, err := readPage(file)
		if err != nil {
			log.Printf("Skipping %s: %v", file, err)
			continue
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// readPage reads the channel name and message count back from a rendered
// archive. Themes mark each message with the "message" class.
func readPage(file string) (channelPage, error) {
	f, err := os.Open(file)
	if err != nil {
		return channelPage{}, err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return channelPage{}, fmt.Errorf("parsing HTML: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(file), "_archive.html")
	if h1 := strings.TrimSpace(doc.Find("h1").First().Text()); h1 != "" {
		name = strings.TrimPrefix(h1, "#")
	}

	return channelPage{
		File:     filepath.Base(file),
		Channel:  name,
		Messages: doc.Find(".message").Length(),
	}, nil
}

func buildIndex(dir string) error {
	pages, err := scanArchive(dir)
	if err != nil {
		return err
	}

	out, err := os.Create(filepath.Join(dir, indexName))
	if err != nil {
		return fmt.Errorf("creating index: %w", err)
	}
	defer out.Close()

	if err := indexTemplate.ExecuteWriter(pongo2.Context{
		"archive": filepath.Base(dir),
		"pages":   pages,
	}, out); err != nil {
		return fmt.Errorf("rendering index: %w", err)
	}

	log.Printf("Indexed %d channels in %s", len(pages), filepath.Join(dir, indexName))
	return nil
}
