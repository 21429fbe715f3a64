package classify

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// keywordFile is the schema of an optional keyword override file.
type keywordFile struct {
	Keywords []string `yaml:"keywords"`
}

// LoadKeywords reads an ordered keyword list from a YAML file. A missing path
// or empty file yields the built-in defaults; a malformed file is an error so
// a typo cannot silently disable recall.
func LoadKeywords(path string, logger *slog.Logger) (*Classifier, error) {
	if path == "" {
		return New(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		logger.Debug("keyword file does not exist, using defaults", "path", path)
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read keyword file %s: %w", path, err)
	}

	var kf keywordFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse keyword file %s: %w", path, err)
	}
	if len(kf.Keywords) > 0 {
		logger.Info("loaded classifier keywords", "path", path, "count", len(kf.Keywords))
	}
	return NewWithKeywords(kf.Keywords), nil
}
