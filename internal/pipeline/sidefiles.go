package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mk12002/Machine-Consciousness-Emergence-Tracking/internal/models"
)

// Side file names, relative to the side file directory.
const (
	NewsFile       = "latest_ml_news.json"
	MilestonesFile = "evaluated_milestones.json"
)

// SideFiles writes intermediate results for inspection and manual resume.
type SideFiles struct {
	dir string
}

// NewSideFiles writes into dir.
func NewSideFiles(dir string) *SideFiles {
	return &SideFiles{dir: dir}
}

// WriteNews stores the collected items as latest_ml_news.json.
func (s *SideFiles) WriteNews(items []models.NewsItem) error {
	if items == nil {
		items = []models.NewsItem{}
	}
	return s.write(NewsFile, items)
}

// WriteMilestones stores the evaluated batch as evaluated_milestones.json.
func (s *SideFiles) WriteMilestones(milestones []models.Milestone) error {
	if milestones == nil {
		milestones = []models.Milestone{}
	}
	return s.write(MilestonesFile, milestones)
}

func (s *SideFiles) write(name string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadMilestones loads a batch previously written by WriteMilestones.
func ReadMilestones(path string) ([]models.Milestone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read milestones: %w", err)
	}
	var milestones []models.Milestone
	if err := json.Unmarshal(data, &milestones); err != nil {
		return nil, fmt.Errorf("decode milestones: %w", err)
	}
	return milestones, nil
}
