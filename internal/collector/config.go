package collector

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

// FileEntry configures one dump-file source in the inventory file.
type FileEntry struct {
	Name            string `json:"name"`
	Path            string `json:"path"`
	RemoveAfterRead bool   `json:"remove_after_read"`
}

// Inventory is the JSON device-inventory file: the devices to scrape
// over SSH and the dump files to ingest.
type Inventory struct {
	Devices []Device    `json:"devices"`
	Files   []FileEntry `json:"files"`
}

func LoadInventory(path string) (Inventory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Inventory{}, fmt.Errorf("reading inventory: %w", err)
	}

	var inv Inventory
	if err := json.Unmarshal(data, &inv); err != nil {
		return Inventory{}, fmt.Errorf("parsing inventory %s: %w", path, err)
	}

	for i, device := range inv.Devices {
		if device.Address == "" {
			return Inventory{}, fmt.Errorf("inventory %s: device %d has no address", path, i)
		}
	}
	for i, file := range inv.Files {
		if file.Path == "" {
			return Inventory{}, fmt.Errorf("inventory %s: file %d has no path", path, i)
		}
	}
	return inv, nil
}

// Sources builds the configured sources.
func (inv Inventory) Sources(logger *slog.Logger) []Source {
	out := make([]Source, 0, len(inv.Devices)+len(inv.Files))
	for _, device := range inv.Devices {
		out = append(out, NewSSHSource(device, logger))
	}
	for _, file := range inv.Files {
		out = append(out, NewFileSource(file.Name, file.Path, file.RemoveAfterRead, logger))
	}
	return out
}
