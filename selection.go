package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
)

// parseChannelSelection turns operator input into channel indexes (0-based)
// in the order typed. "all" selects every channel. One bad entry rejects the
// whole input.
func parseChannelSelection(input string, count int) ([]int, error) {
	input = strings.TrimSpace(input)
	if strings.EqualFold(input, "all") {
		all := make([]int, count)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	if input == "" {
		return nil, errors.New("no channels selected")
	}

	var selected []int
	for _, part := range strings.Split(input, ",") {
		part = strings.TrimSpace(part)
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid input %q: use numbers separated by commas, or 'all'", part)
		}
		if n < 1 || n > count {
			return nil, fmt.Errorf("channel number %d out of range", n)
		}
		if !slices.Contains(selected, n-1) {
			selected = append(selected, n-1)
		}
	}
	return selected, nil
}

// filterServers keeps servers whose name contains query, ignoring case
func filterServers(servers []Server, query string) []Server {
	query = strings.ToLower(strings.TrimSpace(query))
	var matched []Server
	for _, s := range servers {
		if strings.Contains(strings.ToLower(s.Name), query) {
			matched = append(matched, s)
		}
	}
	return matched
}

// listThemes returns the sorted theme directory names under root
func listThemes(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrThemesMissing, root)
		}
		return nil, fmt.Errorf("reading themes directory: %w", err)
	}

	var themes []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			themes = append(themes, e.Name())
		}
	}
	if len(themes) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoThemes, root)
	}
	slices.Sort(themes)
	return themes, nil
}

// themePath joins a theme name chosen from listThemes with its root
func themePath(root, name string) string {
	return filepath.Join(root, name)
}
