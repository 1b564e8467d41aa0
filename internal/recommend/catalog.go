package recommend

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opensource-finance/merlin/internal/domain"
	"gopkg.in/yaml.v3"
)

// catalogEntry accepts both "text" and "description" for the body.
type catalogEntry struct {
	Title       string `json:"title" yaml:"title"`
	Text        string `json:"text" yaml:"text"`
	Description string `json:"description" yaml:"description"`
}

// LoadCatalog reads a product catalog from a JSON or YAML file.
func LoadCatalog(path string) ([]domain.Product, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var entries []catalogEntry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &entries)
	default:
		err = json.Unmarshal(data, &entries)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}

	products := make([]domain.Product, 0, len(entries))
	for _, e := range entries {
		body := e.Text
		if body == "" {
			body = e.Description
		}
		title := e.Title
		if title == "" {
			title = "Unknown Product"
		}
		products = append(products, domain.Product{Title: title, Description: body})
	}
	return products, nil
}
