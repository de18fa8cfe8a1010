// Package sheet stores the product catalog as a spreadsheet file with a single
// "Products" sheet: a header row followed by one row per product.
//
// Every write loads the full sheet, mutates it in memory and replaces the file
// as a whole. Writers are serialised by a process-wide lock and the new file is
// renamed over the old one, so readers always observe a complete workbook.
package sheet

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/xenking/chronos-shop/internal/domain/product"
)

// SheetName is the worksheet holding the catalog.
const SheetName = "Products"

var columns = []string{"id", "name", "price", "image"}

var _ product.Repository = (*ProductStore)(nil)

// ProductStore implements product.Repository on top of a spreadsheet file.
type ProductStore struct {
	path string
	// mu serialises read-modify-write cycles.
	mu sync.Mutex
}

// NewProductStore returns a store backed by the file at path. The file is
// created on first write.
func NewProductStore(path string) *ProductStore {
	return &ProductStore{path: path}
}

// Path returns the location of the backing file.
func (s *ProductStore) Path() string {
	return s.path
}

// List returns every product in sheet order.
func (s *ProductStore) List(ctx context.Context) ([]product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load()
}

// Create appends p to the catalog.
func (s *ProductStore) Create(ctx context.Context, p product.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.load()
	if err != nil {
		return err
	}
	products = append(products, p)
	return s.save(products)
}

// Delete removes the product with the given id.
func (s *ProductStore) Delete(ctx context.Context, id int64) (*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	products, err := s.load()
	if err != nil {
		return nil, err
	}

	var removed *product.Product
	kept := products[:0]
	for _, p := range products {
		if removed == nil && p.ID == id {
			removed = &p
			continue
		}
		kept = append(kept, p)
	}
	if removed == nil {
		return nil, product.ErrNotFound
	}
	if err := s.save(kept); err != nil {
		return nil, err
	}
	return removed, nil
}

func (s *ProductStore) load() ([]product.Product, error) {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []product.Product{}, nil
		}
		return nil, fmt.Errorf("opening %s: %w", s.path, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows(SheetName, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", SheetName, err)
	}
	if len(rows) == 0 {
		return []product.Product{}, nil
	}

	// Columns are located by header name, so hand-edited sheets with reordered
	// or extra columns still load.
	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[name] = i
	}
	cell := func(row []string, name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	products := make([]product.Product, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}
		p, err := parseRow(cell(row, "id"), cell(row, "name"), cell(row, "price"), cell(row, "image"))
		if err != nil {
			return nil, fmt.Errorf("parsing row %d: %w", n+2, err)
		}
		products = append(products, p)
	}
	return products, nil
}

func parseRow(id, name, price, image string) (product.Product, error) {
	p := product.Product{Name: name, Image: image}

	var err error
	if p.ID, err = strconv.ParseInt(id, 10, 64); err != nil {
		return p, fmt.Errorf("id %q: %w", id, err)
	}
	if price == "" {
		return p, nil
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return p, fmt.Errorf("price %q: %w", price, err)
	}
	return p, nil
}

func (s *ProductStore) save(products []product.Product) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, p := range products {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		// Prices are text cells: a numeric cell would round them to a float64.
		row := []any{p.ID, p.Name, p.Price.String(), p.Image}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("writing product %d: %w", p.ID, err)
		}
	}

	return s.replace(f)
}

// replace writes the workbook next to the target and renames it into place.
func (s *ProductStore) replace(f *excelize.File) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".products-*.xlsx")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := f.Write(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("writing workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("syncing workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing workbook: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing %s: %w", s.path, err)
	}
	return nil
}
