package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting checks if tuplespace.yml or the example scenario already exist
// in dir. Returns an error if they do, nil otherwise.
func CheckExisting(dir string) error {
	var existingFiles []string

	if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil {
		existingFiles = append(existingFiles, ConfigFile)
	}

	example := filepath.Join(ScenarioDir, ExampleScenario)
	if _, err := os.Stat(filepath.Join(dir, example)); err == nil {
		existingFiles = append(existingFiles, example)
	}

	if len(existingFiles) > 0 {
		errMsg := "project already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'tuplespace init --force' to reinitialize (this will overwrite existing files)"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
