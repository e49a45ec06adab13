package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// loadDotEnv loads the first .env file found between the working directory
// and the module root. Existing environment variables are not overwritten;
// a missing file is not an error because production injects real env vars.
func loadDotEnv(name string) (string, error) {
	for _, path := range dotEnvCandidates(name) {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", nil
}

func dotEnvCandidates(name string) []string {
	if filepath.IsAbs(name) {
		return []string{name}
	}

	dir, err := os.Getwd()
	if err != nil {
		return []string{name}
	}

	var paths []string
	for {
		paths = append(paths, filepath.Join(dir, name))
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return paths
}
