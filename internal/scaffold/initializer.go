package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/tuplespace/internal/config"
	"github.com/dyluth/tuplespace/internal/scenario"
)

//go:embed templates/*
var templatesFS embed.FS

const (
	// ConfigFile is the configuration written by Initialize.
	ConfigFile = "tuplespace.yml"
	// ScenarioDir holds the example scenario.
	ScenarioDir = "scenarios"
	// ExampleScenario is the example scenario's file name.
	ExampleScenario = "example.yml"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes a starter tuplespace.yml and an example scenario into dir.
// If force is true, existing files are replaced. It returns the created paths
// relative to dir.
func Initialize(dir string, force bool) ([]string, error) {
	if force {
		if err := handleForce(dir); err != nil {
			return nil, err
		}
	} else if err := CheckExisting(dir); err != nil {
		return nil, err
	}

	files, err := getTemplateFiles()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Join(dir, ScenarioDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", ScenarioDir, err)
	}

	if err := writeFiles(dir, files); err != nil {
		return nil, err
	}

	if err := validateCreatedFiles(dir); err != nil {
		return nil, err
	}

	created := make([]string, 0, len(files))
	for _, f := range files {
		created = append(created, f.Path)
	}
	return created, nil
}

// handleForce removes existing files if --force was specified
func handleForce(dir string) error {
	cfgPath := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Printf("⚠️  Removing existing %s...\n", ConfigFile)
		if err := os.Remove(cfgPath); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
		}
	}

	examplePath := filepath.Join(dir, ScenarioDir, ExampleScenario)
	if _, err := os.Stat(examplePath); err == nil {
		fmt.Printf("⚠️  Removing existing %s...\n", filepath.Join(ScenarioDir, ExampleScenario))
		if err := os.Remove(examplePath); err != nil {
			return fmt.Errorf("failed to remove example scenario: %w", err)
		}
	}

	return nil
}

// getTemplateFiles reads all embedded templates
func getTemplateFiles() ([]FileInfo, error) {
	cfg, err := templatesFS.ReadFile("templates/tuplespace.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", ConfigFile, err)
	}

	example, err := templatesFS.ReadFile("templates/example.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read example scenario template: %w", err)
	}

	return []FileInfo{
		{Path: ConfigFile, Content: cfg, Permissions: 0644},
		{Path: filepath.Join(ScenarioDir, ExampleScenario), Content: example, Permissions: 0644},
	}, nil
}

func writeFiles(dir string, files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(filepath.Join(dir, file.Path), file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}
	return nil
}

// validateCreatedFiles loads the written files the same way serve and run do.
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, ConfigFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}
	if _, err := scenario.Load(filepath.Join(dir, ScenarioDir, ExampleScenario)); err != nil {
		return fmt.Errorf("created example scenario is invalid: %w", err)
	}
	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess(created []string) {
	fmt.Println("\n✅ Successfully initialized tuple space project!")
	fmt.Println("\nCreated:")
	for _, path := range created {
		fmt.Printf("  ✓ %s\n", path)
	}
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Adjust %s (enable redis, journal or http as needed)\n", ConfigFile)
	fmt.Printf("  2. Run 'tuplespace run %s' to replay the example\n", filepath.Join(ScenarioDir, ExampleScenario))
	fmt.Println("  3. Run 'tuplespace serve' to host the space")
}
