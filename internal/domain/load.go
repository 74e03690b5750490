package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFunction reads a function definition from a YAML file.
func LoadFunction(path string) (*Function, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read function spec: %w", err)
	}
	var fn Function
	if err := yaml.Unmarshal(data, &fn); err != nil {
		return nil, fmt.Errorf("parse function spec %s: %w", path, err)
	}
	if strings.TrimSpace(fn.Meta.Name) == "" {
		return nil, fmt.Errorf("function spec %s: name required", path)
	}
	if fn.Meta.Project == "" {
		fn.Meta.Project = "default"
	}
	return &fn, nil
}

// LoadFunctionsDir reads every top-level .yaml/.yml file under dir.
func LoadFunctionsDir(dir string) ([]*Function, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read functions dir: %w", err)
	}
	var functions []*Function
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		fn, err := LoadFunction(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		functions = append(functions, fn)
	}
	return functions, nil
}
