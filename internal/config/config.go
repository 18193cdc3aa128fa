package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultPath is looked up in the working directory when no --config is given.
const DefaultPath = "catalogtx.yaml"

// Files names the SQL and registry files of one catalog kind, relative to OutputDir.
type Files struct {
	SQL      string `yaml:"sql" validate:"required"`
	Registry string `yaml:"registry" validate:"required"`
}

type Config struct {
	BackupDir string `yaml:"backup_dir" validate:"required"`
	OutputDir string `yaml:"output_dir" validate:"required"`
	LogDir    string `yaml:"log_dir" validate:"required"`
	LogLevel  string `yaml:"log_level" validate:"oneof=info debug error"`
	Encoding  string `yaml:"encoding" validate:"required"`

	Brands   Files `yaml:"brands"`
	Products Files `yaml:"products"`

	Categories   string `yaml:"categories" validate:"required"`
	Options      string `yaml:"options_sql" validate:"required"`
	MainImages   string `yaml:"main_images_sql" validate:"required"`
	DetailImages string `yaml:"detail_images_sql" validate:"required"`
}

// Default mirrors the file layout the scraper has always produced.
func Default() Config {
	return Config{
		BackupDir: ".transaction_backup",
		OutputDir: ".",
		LogDir:    "logs",
		LogLevel:  "info",
		Encoding:  "utf-8",

		Brands:   Files{SQL: "brand_sql.txt", Registry: "brand_data.json"},
		Products: Files{SQL: "product_data_sql.txt", Registry: "product_data.json"},

		Categories:   "category_data.json",
		Options:      "product_options_sql.txt",
		MainImages:   "product_main_images_sql.txt",
		DetailImages: "product_detail_images_sql.txt",
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Path joins name onto the output directory. Absolute names are kept.
func (c Config) Path(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.OutputDir, name)
}

// Load reads path on top of Default. A missing file yields the defaults.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func Save(fs afero.Fs, path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := fs.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory %w", err)
		}
	}
	return afero.WriteFile(fs, path, data, 0644)
}
