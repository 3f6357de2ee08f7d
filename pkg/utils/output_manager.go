package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// OutputManager lays out per-run artifact directories
type OutputManager struct {
	BaseOutputDir string
}

// Artifact describes one file a run produced
type Artifact struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	URL  string `json:"url"`
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

// RunDir creates the directory holding a run's artifacts
func (om *OutputManager) RunDir(runID string) (string, error) {
	runDir := filepath.Join(om.BaseOutputDir, filepath.Base(runID))
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create run output directory: %w", err)
	}
	return runDir, nil
}

// FilePath returns the path of an artifact inside the run directory
func (om *OutputManager) FilePath(runID, fileName string) (string, error) {
	runDir, err := om.RunDir(runID)
	if err != nil {
		return "", err
	}
	return filepath.Join(runDir, filepath.Base(fileName)), nil
}

// StageLogName is the artifact name for one stage's log
func StageLogName(job string, instance int, stage string) string {
	return fmt.Sprintf("%s-%s-%s.log", safeName(job), strconv.Itoa(instance), safeName(stage))
}

func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ', ':':
			return '_'
		}
		return r
	}, s)
}

// ArtifactURL is where the API serves an artifact
func (om *OutputManager) ArtifactURL(runID, fileName string) string {
	return fmt.Sprintf("/api/v1/runs/%s/artifacts/%s", runID, filepath.Base(fileName))
}

// FileType determines the file type based on extension
func (om *OutputManager) FileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".log", ".txt":
		return "text"
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "unknown"
	}
}

// Artifacts lists the files of a run, sorted by name. A run without a
// directory has no artifacts.
func (om *OutputManager) Artifacts(runID string) ([]Artifact, error) {
	entries, err := os.ReadDir(filepath.Join(om.BaseOutputDir, filepath.Base(runID)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []Artifact
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, err
		}
		out = append(out, Artifact{
			Name: e.Name(),
			Type: om.FileType(e.Name()),
			Size: info.Size(),
			URL:  om.ArtifactURL(runID, e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}
