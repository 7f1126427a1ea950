package extract

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/surveillance-cli/internal/model"
)

var documentExts = map[string]bool{".md": true, ".markdown": true, ".txt": true}

// LoadDocuments reads bulletin text from a single file, every Markdown or
// text file under a directory, or a glob pattern. Paths are returned in
// lexical order.
func LoadDocuments(input string) ([]model.Document, error) {
	paths, err := documentPaths(input)
	if err != nil {
		return nil, err
	}

	docs := make([]model.Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: read document %s", p)
		}
		docs = append(docs, model.Document{
			Name: filepath.Base(p),
			Text: strings.ToValidUTF8(string(data), ""),
		})
	}
	return docs, nil
}

func documentPaths(input string) ([]string, error) {
	info, err := os.Stat(input)
	switch {
	case err == nil && !info.IsDir():
		return []string{input}, nil
	case err == nil:
		var paths []string
		walkErr := filepath.WalkDir(input, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && documentExts[strings.ToLower(filepath.Ext(p))] {
				paths = append(paths, p)
			}
			return nil
		})
		if walkErr != nil {
			return nil, eris.Wrapf(walkErr, "extract: walk %s", input)
		}
		sort.Strings(paths)
		return paths, nil
	}

	matches, globErr := filepath.Glob(input)
	if globErr != nil {
		return nil, eris.Wrapf(globErr, "extract: glob %s", input)
	}
	var paths []string
	for _, m := range matches {
		if documentExts[strings.ToLower(filepath.Ext(m))] {
			paths = append(paths, m)
		}
	}
	if len(paths) == 0 {
		return nil, eris.Errorf("extract: no documents match %s", input)
	}
	sort.Strings(paths)
	return paths, nil
}
