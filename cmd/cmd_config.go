package main

import (
	"fmt"
	"io"

	"CatalogTx/internal/config"

	"github.com/spf13/afero"
)

// runInitConfig writes the default configuration to path. An existing file
// is only replaced when force is set.
func runInitConfig(fs afero.Fs, path string, force bool, w io.Writer) error {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return err
	}
	if exists && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite it", path)
	}
	if err := config.Save(fs, path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(w, "wrote default config to %s\n", path)
	return nil
}
