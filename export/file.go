package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
)

// WriteFile writes fc to path. An existing file is moved aside first and put
// back if the write fails.
func WriteFile(path string, fc *geojson.FeatureCollection) (err error) {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal feature collection: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	backup := path + ".bak"
	if _, statErr := os.Stat(path); statErr == nil {
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("back up %s: %w", path, err)
		}
		defer func() {
			if err != nil {
				_ = os.Remove(path)
				err = errors.Join(err, os.Rename(backup, path))
				return
			}
			_ = os.Remove(backup)
		}()
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a collection written by WriteFile.
func ReadFile(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return geojson.UnmarshalFeatureCollection(data)
}
