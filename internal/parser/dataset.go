package parser

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"complaint-rag/internal/config"
	"complaint-rag/internal/helper"
	"complaint-rag/internal/models"
)

// optional CFPB columns copied into records when present
const (
	dateColumn    = "Date received"
	companyColumn = "Company"
	issueColumn   = "Issue"
	stateColumn   = "State"
)

// LoadStats summarizes a dataset pass.
type LoadStats struct {
	Rows      int
	Eligible  int
	ByProduct map[string]int
}

// rowSource yields dataset rows, header first.
type rowSource interface {
	Next() ([]string, error)
	Close() error
}

// LoadRecords reads a CSV or XLSX complaint dataset, keeping rows whose
// product is in the allow-list and whose narrative is non-empty. Narratives
// are cleaned and word-counted on the way in.
func LoadRecords(cfg *config.DatasetConfig) ([]models.Record, LoadStats, error) {
	stats := LoadStats{ByProduct: map[string]int{}}

	src, err := openRows(cfg.Path)
	if err != nil {
		return nil, stats, err
	}
	defer src.Close()

	header, err := src.Next()
	if err != nil {
		return nil, stats, fmt.Errorf("%w: read header of %s: %v", models.ErrData, cfg.Path, err)
	}
	cols := indexColumns(header)

	productIdx, ok := cols[cfg.ProductColumn]
	if !ok {
		return nil, stats, fmt.Errorf("%w: missing column %q", models.ErrData, cfg.ProductColumn)
	}
	narrativeIdx, ok := cols[cfg.NarrativeColumn]
	if !ok {
		return nil, stats, fmt.Errorf("%w: missing column %q", models.ErrData, cfg.NarrativeColumn)
	}

	allowed := make(map[string]struct{}, len(cfg.Products))
	for _, p := range cfg.Products {
		allowed[p] = struct{}{}
	}

	var records []models.Record
	for {
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("%w: row %d: %v", models.ErrData, stats.Rows+1, err)
		}
		stats.Rows++

		product := field(row, productIdx)
		narrative := field(row, narrativeIdx)
		if _, ok := allowed[product]; !ok || strings.TrimSpace(narrative) == "" {
			continue
		}

		id := fieldByName(row, cols, cfg.IDColumn)
		if id == "" {
			id = "row-" + strconv.Itoa(stats.Rows)
		}
		records = append(records, models.Record{
			ComplaintID:  id,
			Product:      product,
			Narrative:    narrative,
			Cleaned:      CleanText(narrative),
			WordCount:    WordCount(narrative),
			DateReceived: fieldByName(row, cols, dateColumn),
			Company:      fieldByName(row, cols, companyColumn),
			Issue:        fieldByName(row, cols, issueColumn),
			State:        fieldByName(row, cols, stateColumn),
		})
		stats.ByProduct[product]++
	}

	stats.Eligible = len(records)
	if len(records) == 0 {
		return nil, stats, fmt.Errorf("%w: no rows in %s match the product filter with a narrative", models.ErrData, cfg.Path)
	}
	log.Debug().Int("rows", stats.Rows).Int("eligible", stats.Eligible).Msg("Loaded dataset")
	return records, stats, nil
}

func openRows(path string) (rowSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		r := csv.NewReader(f)
		r.FieldsPerRecord = -1
		r.LazyQuotes = true
		return &csvRows{f: f, r: r}, nil
	case ".xlsx":
		f, err := excelize.OpenFile(path)
		if err != nil {
			return nil, err
		}
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, fmt.Errorf("%w: %s has no sheets", models.ErrData, path)
		}
		rows, err := f.Rows(sheets[0])
		if err != nil {
			f.Close()
			return nil, err
		}
		return &xlsxRows{f: f, rows: rows}, nil
	default:
		return nil, fmt.Errorf("%w: unsupported dataset format: %s", models.ErrData, path)
	}
}

type csvRows struct {
	f *os.File
	r *csv.Reader
}

func (c *csvRows) Next() ([]string, error) { return c.r.Read() }
func (c *csvRows) Close() error { return c.f.Close() }

type xlsxRows struct {
	f    *excelize.File
	rows *excelize.Rows
}

func (x *xlsxRows) Next() ([]string, error) {
	if !x.rows.Next() {
		if err := x.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return x.rows.Columns()
}

func (x *xlsxRows) Close() error {
	x.rows.Close()
	return x.f.Close()
}

func indexColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		// excel exports sometimes carry a BOM on the first header cell
		cols[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	return cols
}

func field(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func fieldByName(row []string, cols map[string]int, name string) string {
	if name == "" {
		return ""
	}
	idx, ok := cols[name]
	if !ok {
		return ""
	}
	return field(row, idx)
}

// Sample draws n records stratified by product, preserving each product's
// share of the corpus (largest remainder rounding). The selection keeps the
// original record order. n <= 0 or n >= len(records) returns records as is.
func Sample(records []models.Record, n int, seed int64) []models.Record {
	if n <= 0 || n >= len(records) {
		return records
	}

	groups := map[string][]int{}
	var products []string
	for i, r := range records {
		if _, ok := groups[r.Product]; !ok {
			products = append(products, r.Product)
		}
		groups[r.Product] = append(groups[r.Product], i)
	}
	sort.Strings(products)

	type share struct {
		product   string
		quota     int
		remainder float64
	}
	shares := make([]share, len(products))
	allocated := 0
	for i, p := range products {
		exact := float64(n) * float64(len(groups[p])) / float64(len(records))
		shares[i] = share{product: p, quota: int(exact), remainder: exact - float64(int(exact))}
		allocated += shares[i].quota
	}
	order := make([]int, len(shares))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return shares[order[a]].remainder > shares[order[b]].remainder })
	for i := 0; allocated < n; i++ {
		shares[order[i%len(order)]].quota++
		allocated++
	}

	rng := rand.New(rand.NewSource(seed))
	var picked []int
	for _, s := range shares {
		idxs := append([]int(nil), groups[s.product]...)
		rng.Shuffle(len(idxs), func(a, b int) { idxs[a], idxs[b] = idxs[b], idxs[a] })
		picked = append(picked, idxs[:min(s.quota, len(idxs))]...)
	}
	sort.Ints(picked)

	out := make([]models.Record, len(picked))
	for i, idx := range picked {
		out[i] = records[idx]
	}
	return out
}

// SaveRecords writes the cleaned dataset to CSV.
func SaveRecords(path string, records []models.Record) error {
	if err := helper.CreateFolder(filepath.Dir(path)); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := []string{"complaint_id", "product", "date_received", "company", "issue", "state", "narrative_length", "cleaned_narrative"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{r.ComplaintID, r.Product, r.DateReceived, r.Company, r.Issue, r.State, strconv.Itoa(r.WordCount), r.Cleaned}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
