// Package ingestion - Base price CSV source
package ingestion

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"sda-calculator/core/temporal"
	"sda-calculator/core/types"
	"sda-calculator/internal/errors"
)

// Required base price CSV columns
var basePriceColumns = []string{
	"stock_type", "building_type", "resident_count", "design_category",
	"ooa_status", "fire_sprinklers", "itc_claimed", "price",
}

// CSVOptions tunes base price import
type CSVOptions struct {
	// EffectiveFrom applies to rows without an effective_from column value
	EffectiveFrom time.Time

	// Supersede closes open rows for the imported keys at EffectiveFrom
	Supersede bool
}

// BasePriceCSV reads base prices from a price list export
type BasePriceCSV struct {
	name string
	open func() (io.ReadCloser, error)
	opts CSVOptions
}

// NewBasePriceCSV reads base prices from a file
func NewBasePriceCSV(path string, opts CSVOptions) *BasePriceCSV {
	return &BasePriceCSV{
		name: path,
		open: func() (io.ReadCloser, error) { return os.Open(path) },
		opts: opts,
	}
}

// NewBasePriceCSVReader reads base prices from r
func NewBasePriceCSVReader(name string, r io.Reader, opts CSVOptions) *BasePriceCSV {
	return &BasePriceCSV{
		name: name,
		open: func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
		opts: opts,
	}
}

// Name returns the source name
func (s *BasePriceCSV) Name() string {
	return "csv:" + s.name
}

// Fetch parses every row; the first bad row aborts the import
func (s *BasePriceCSV) Fetch(ctx context.Context) (*Batch, error) {
	rc, err := s.open()
	if err != nil {
		return nil, errors.Parsing(fmt.Sprintf("open %s", s.name), err)
	}
	defer rc.Close()

	from := s.opts.EffectiveFrom
	if from.IsZero() {
		from = DefaultEffectiveFrom
	}
	from = temporal.Day(from)

	reader := csv.NewReader(rc)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Parsing(fmt.Sprintf("read header of %s", s.name), err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range basePriceColumns {
		if _, ok := cols[c]; !ok {
			return nil, errors.Parsing(fmt.Sprintf("%s: missing column %q", s.name, c), nil)
		}
	}

	batch := &Batch{}
	if s.opts.Supersede {
		batch.SupersedeFrom = &from
	}

	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Parsing(fmt.Sprintf("%s line %d", s.name, line), err)
		}

		row := csvRow{record: record, cols: cols}
		price, err := row.basePrice(from)
		if err != nil {
			return nil, errors.Parsing(fmt.Sprintf("%s line %d", s.name, line), err)
		}
		batch.BasePrices = append(batch.BasePrices, price)
	}

	return batch, nil
}

type csvRow struct {
	record []string
	cols   map[string]int
}

func (r csvRow) get(col string) string {
	i, ok := r.cols[col]
	if !ok || i >= len(r.record) {
		return ""
	}
	return strings.TrimSpace(r.record[i])
}

func (r csvRow) basePrice(defaultFrom time.Time) (types.BasePrice, error) {
	stock, err := types.ParseStockType(r.get("stock_type"))
	if err != nil {
		return types.BasePrice{}, err
	}
	design, err := types.ParseDesignCategory(r.get("design_category"))
	if err != nil {
		return types.BasePrice{}, err
	}
	ooa, err := types.ParseOOAStatus(r.get("ooa_status"))
	if err != nil {
		return types.BasePrice{}, err
	}
	residents, err := strconv.Atoi(r.get("resident_count"))
	if err != nil {
		return types.BasePrice{}, fmt.Errorf("resident_count: %w", err)
	}
	sprinklers, err := strconv.ParseBool(r.get("fire_sprinklers"))
	if err != nil {
		return types.BasePrice{}, fmt.Errorf("fire_sprinklers: %w", err)
	}
	itc, err := parseOptionalBool(r.get("itc_claimed"))
	if err != nil {
		return types.BasePrice{}, fmt.Errorf("itc_claimed: %w", err)
	}
	price, err := decimal.NewFromString(strings.NewReplacer("$", "", ",", "").Replace(r.get("price")))
	if err != nil {
		return types.BasePrice{}, fmt.Errorf("price: %w", err)
	}
	from, err := parseOptionalDate(r.get("effective_from"), defaultFrom)
	if err != nil {
		return types.BasePrice{}, err
	}
	var to *time.Time
	if raw := r.get("effective_to"); raw != "" {
		end, err := temporal.ParseDate(raw)
		if err != nil {
			return types.BasePrice{}, err
		}
		to = &end
	}

	return types.BasePrice{
		StockType:      stock,
		BuildingType:   r.get("building_type"),
		ResidentCount:  residents,
		DesignCategory: design,
		OOAStatus:      ooa,
		FireSprinklers: sprinklers,
		ITCClaimed:     itc,
		Price:          price,
		Interval:       temporal.NewInterval(from, to),
	}, nil
}

// parseOptionalBool maps an empty cell to nil
func parseOptionalBool(s string) (*bool, error) {
	if s == "" || strings.EqualFold(s, "null") {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
