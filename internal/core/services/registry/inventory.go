package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/lcalzada-xor/vulnfleet/internal/core/domain"
)

// LoadInventory reads inventory items from a JSON or YAML file, chosen by extension.
func LoadInventory(path string) ([]domain.InventoryItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read inventory: %w", err)
	}
	return ParseInventory(data, filepath.Ext(path))
}

// ParseInventory decodes inventory items. ext selects YAML for ".yaml" and ".yml"
// and JSON otherwise.
func ParseInventory(data []byte, ext string) ([]domain.InventoryItem, error) {
	var items []domain.InventoryItem

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: invalid YAML inventory: %v", domain.ErrInvalidInput, err)
		}
	default:
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: invalid JSON inventory: %v", domain.ErrInvalidInput, err)
		}
	}

	return items, nil
}

// WriteCheckReport prints one line per asset with the validity of its platform identifier.
func WriteCheckReport(w io.Writer, checks []PlatformCheck) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVALID CPE\tCPE")
	valid := 0
	for _, c := range checks {
		mark := "no"
		if c.Valid {
			mark = "yes"
			valid++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Asset.Name, mark, c.Asset.PlatformID)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d/%d equipment carry a valid CPE 2.3 string\n", valid, len(checks))
	return err
}
