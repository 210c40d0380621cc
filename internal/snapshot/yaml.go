package snapshot

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/garyjia/invoice-pipeline/internal/domain/entity"
)

// File is the YAML layout of a snapshot fixture
type File struct {
	Items   []entity.InventoryRecord `yaml:"items"`
	Vendors []entity.VendorRecord    `yaml:"vendors"`
}

// LoadYAML reads a snapshot fixture from disk
func LoadYAML(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes a snapshot fixture
func ParseYAML(data []byte) (*Snapshot, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	for i, it := range f.Items {
		if Key(it.Item) == "" {
			return nil, fmt.Errorf("snapshot item %d has no name", i)
		}
		if it.Stock < 0 {
			return nil, fmt.Errorf("snapshot item %q has negative stock", it.Item)
		}
	}
	for i, v := range f.Vendors {
		if Key(v.Name) == "" {
			return nil, fmt.Errorf("snapshot vendor %d has no name", i)
		}
	}
	return New(f.Items, f.Vendors), nil
}
