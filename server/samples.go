package server

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SampleInfo describes one workspace document in the samples directory.
type SampleInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// listSamples scans dir for *.json workspace documents, skipping
// *.effects.json companions. The description comes from the document's
// metadata; unreadable documents are listed with an empty description rather
// than hidden, so a broken sample is still discoverable.
func listSamples(dir string) ([]SampleInfo, error) {
	if dir == "" {
		return []SampleInfo{}, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []SampleInfo{}, nil
		}
		return nil, err
	}

	samples := []SampleInfo{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".effects.json") {
			continue
		}
		info := SampleInfo{Name: strings.TrimSuffix(name, ".json")}
		if data, err := os.ReadFile(filepath.Join(dir, name)); err == nil {
			var doc struct {
				Metadata struct {
					Description string `json:"description"`
				} `json:"metadata"`
			}
			if json.Unmarshal(data, &doc) == nil {
				info.Description = doc.Metadata.Description
			}
		}
		samples = append(samples, info)
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].Name < samples[j].Name })
	return samples, nil
}
