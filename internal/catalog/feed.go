package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Option is one purchasable variant of a product as scraped. Price is the
// storefront text, e.g. "12,000원".
type Option struct {
	Name    string `yaml:"name" json:"name"`
	Price   string `yaml:"price" json:"price"`
	Image   string `yaml:"image" json:"image"`
	SoldOut bool   `yaml:"sold_out" json:"sold_out"`
}

// SellingPrice extracts the digits of Price. Options without a usable name
// or price are not exported.
func (o Option) SellingPrice() (int, bool) {
	if strings.TrimSpace(o.Name) == "" {
		return 0, false
	}
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, o.Price)
	if digits == "" {
		return 0, false
	}
	price, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return price, true
}

type Product struct {
	Name         string   `yaml:"name" json:"name" validate:"required"`
	Brand        string   `yaml:"brand" json:"brand" validate:"required"`
	Category     string   `yaml:"category" json:"category" validate:"required"`
	Images       []string `yaml:"images" json:"images" validate:"dive,required"`
	DetailImages []string `yaml:"detail_images" json:"detail_images" validate:"dive,required"`
	Options      []Option `yaml:"options" json:"options"`
}

// Feed is a scraped batch. Categories, when present, are defined before any
// product is exported.
type Feed struct {
	Categories map[string]int `yaml:"categories" validate:"dive,keys,required,endkeys,gt=0"`
	Products   []Product      `yaml:"products" validate:"dive"`
}

var validate = validator.New()

func (p Product) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid product %q: %w", p.Name, err)
	}
	return nil
}

// LoadFeed reads a YAML or JSON feed: either a bare list of products or a
// mapping with categories and products.
func LoadFeed(fs afero.Fs, path string) (Feed, error) {
	var feed Feed

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return feed, fmt.Errorf("failed to read feed %s: %w", path, err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return feed, fmt.Errorf("failed to parse feed %s: %w", path, err)
	}
	if len(root.Content) == 0 {
		return feed, nil
	}

	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		err = doc.Decode(&feed.Products)
	case yaml.MappingNode:
		err = doc.Decode(&feed)
	default:
		err = fmt.Errorf("expected a list or a mapping at line %d", doc.Line)
	}
	if err != nil {
		return feed, fmt.Errorf("failed to parse feed %s: %w", path, err)
	}

	if err := validate.Struct(feed); err != nil {
		return feed, fmt.Errorf("invalid feed %s: %w", path, err)
	}
	return feed, nil
}
