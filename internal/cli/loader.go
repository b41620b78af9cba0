package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/seanchatmangpt/cleanroom/internal/scenario"
)

// FindScenarioFiles expands a mix of file and directory paths into a
// sorted list of scenario YAML files. Directories are searched
// recursively for .yml/.yaml files; an explicit file path is taken as
// given.
func FindScenarioFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path not found: %s", p)
		}
		if err != nil {
			return nil, fmt.Errorf("error accessing %s: %w", p, err)
		}

		if !info.IsDir() {
			files = append(files, p)
			continue
		}

		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext == ".yml" || ext == ".yaml" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("error scanning %s: %w", p, err)
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no scenario files found in %v", paths)
	}
	sort.Strings(files)
	return files, nil
}

// LoadScenarios loads and validates every discovered scenario file,
// failing fast on the first defect. Duplicate scenario names across
// files are rejected: baselines are stored per name.
func LoadScenarios(paths []string) ([]*scenario.Scenario, error) {
	files, err := FindScenarioFiles(paths)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]string, len(files))
	scenarios := make([]*scenario.Scenario, 0, len(files))
	for _, f := range files {
		sc, err := scenario.LoadFile(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		if prev, dup := seen[sc.Name]; dup {
			return nil, fmt.Errorf("%s: scenario %q already defined in %s", f, sc.Name, prev)
		}
		seen[sc.Name] = f
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}
