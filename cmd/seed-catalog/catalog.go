package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/xenking/chronos-shop/internal/domain/product"
)

type catalogFile struct {
	Products []catalogEntry `yaml:"products"`
}

type catalogEntry struct {
	ID    int64  `yaml:"id"`
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
	Image string `yaml:"image"`
}

func loadCatalog(path string) ([]catalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file %s: %w", path, err)
	}
	return parseCatalog(data)
}

func parseCatalog(data []byte) ([]catalogEntry, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing catalog YAML: %w", err)
	}
	return f.Products, nil
}

func (e catalogEntry) product() (product.Product, error) {
	name := strings.TrimSpace(e.Name)
	if name == "" {
		return product.Product{}, fmt.Errorf("catalog entry %d: name is required", e.ID)
	}
	price, err := decimal.NewFromString(strings.TrimSpace(e.Price))
	if err != nil {
		return product.Product{}, fmt.Errorf("catalog entry %q: price %q: %w", name, e.Price, err)
	}
	return product.Product{
		ID:    e.ID,
		Name:  name,
		Price: price,
		Image: e.Image,
	}, nil
}
