// Copyright (C) 2017 ScyllaDB

package cfgutil

import (
	"os"

	"go.uber.org/config"
)

// ParseYAML populates target from the given yaml files applied in order, a
// key in a later file overrides the same key in an earlier one. Files that
// do not exist are skipped.
func ParseYAML(target interface{}, files ...string) error {
	opts := make([]config.YAMLOption, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		if info.IsDir() {
			continue
		}
		opts = append(opts, config.File(f))
	}

	yml, err := config.NewYAML(opts...)
	if err != nil {
		return err
	}
	return yml.Get(config.Root).Populate(target)
}
