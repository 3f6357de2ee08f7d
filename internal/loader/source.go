package loader

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// File is one raw configuration file.
type File struct {
	Name string
	Data []byte
}

// Source yields configuration files.
type Source interface {
	Files(ctx context.Context) ([]File, error)
}

// DirSource reads every .yml, .yaml and .json file below Dir, in lexical
// path order.
type DirSource struct {
	Dir string
}

func (d DirSource) Files(ctx context.Context) ([]File, error) {
	var paths []string
	err := filepath.WalkDir(d.Dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.IsDir() || !isConfigFile(p) {
			return nil
		}
		paths = append(paths, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan conf directory: %w", err)
	}
	sort.Strings(paths)

	files := make([]File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to open conf file: %w", err)
		}
		files = append(files, File{Name: p, Data: data})
	}
	return files, nil
}

// HTTPSource fetches a single YAML or JSON bundle over HTTP.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

func (h HTTPSource) Files(ctx context.Context) ([]File, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to GET conf bundle: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to GET conf bundle: %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read conf bundle: %w", err)
	}
	name := path.Base(req.URL.Path)
	if name == "." || name == "/" {
		name = h.URL
	}
	return []File{{Name: name, Data: data}}, nil
}

// Sources concatenates several sources; later files override earlier ones.
type Sources []Source

func (s Sources) Files(ctx context.Context) ([]File, error) {
	var out []File
	for _, src := range s {
		files, err := src.Files(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, files...)
	}
	return out, nil
}

// SourceFor picks a source for a location: http(s) URLs are fetched, a
// single file is read as is, anything else is walked as a directory.
func SourceFor(location string) Source {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return HTTPSource{URL: location}
	}
	if info, err := os.Stat(location); err == nil && !info.IsDir() {
		return fileSource(location)
	}
	return DirSource{Dir: location}
}

type fileSource string

func (f fileSource) Files(context.Context) ([]File, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return nil, fmt.Errorf("failed to open conf file: %w", err)
	}
	return []File{{Name: string(f), Data: data}}, nil
}

func isConfigFile(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".yml", ".yaml", ".json":
		return true
	}
	return false
}
