package synth

import (
	"os"
	"path/filepath"
	"sort"
)

// enforceRetention keeps the N most recent WAV files in dir (by filename,
// which is timestamp-based and sortable) and deletes the rest.
func enforceRetention(dir string, keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".wav" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if len(names) <= keep {
		return nil
	}
	for _, name := range names[:len(names)-keep] {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}
