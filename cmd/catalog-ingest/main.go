// Command catalog-ingest processes bulk distributor price files and updates
// wholesale prices for medicines confirmed by multiple distributors.
//
// Each distributor ships a gzipped file of `medicine_id;price` lines. An
// offer is only trusted when the same medicine appears in the files of two
// or more distributors; the lowest confirmed price wins. The cross-file
// matching uses one bloom filter per file so the full code sets never have
// to be held in memory at once.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/viafarma/storefront/internal/repository"
)

const (
	bloomCapacity = 50_000_000
	bloomFPR      = 0.001
	progressEvery = 5_000_000
)

// offer is a distributor's price for a single medicine.
type offer struct {
	fileMask uint
	price    decimal.Decimal
}

// fileResult holds the offers found in a single file during pass 2.
type fileResult struct {
	offers map[string]offer
}

func main() {
	var (
		dataDir     string
		numFiles    int
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing distributorN.gz files")
	flag.IntVar(&numFiles, "num-files", 3, "number of distributor files to cross-reference")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if numFiles < 2 {
		slog.Error("at least two distributor files are required for cross-referencing")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, numFiles, databaseURL); err != nil {
		slog.Error("catalog ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog ingest completed successfully")
}

func run(ctx context.Context, dataDir string, numFiles int, databaseURL string) error {
	files := make([]string, numFiles)
	for i := range numFiles {
		files[i] = filepath.Join(dataDir, fmt.Sprintf("distributor%d.gz", i+1))
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	// Pass 1: Build bloom filters concurrently.
	slog.Info("pass 1: building bloom filters", slog.Int("files", numFiles))

	filters, err := buildBloomFilters(ctx, files)
	if err != nil {
		return errors.Wrap(err, "build bloom filters")
	}

	// Pass 2: Collect offers for medicines appearing in 2+ files.
	slog.Info("pass 2: collecting confirmed offers")

	confirmed, err := findConfirmedOffers(ctx, files, filters)
	if err != nil {
		return errors.Wrap(err, "find confirmed offers")
	}

	slog.Info("confirmed offers found", slog.Int("count", len(confirmed)))

	if len(confirmed) == 0 {
		slog.Info("no confirmed offers to apply")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := applyOffers(ctx, pool, confirmed); err != nil {
		return errors.Wrap(err, "apply offers to database")
	}

	return nil
}

// buildBloomFilters creates one bloom filter per file, concurrently.
func buildBloomFilters(ctx context.Context, files []string) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(buildFilterForFile(ctx, i, f, filters))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return filters, nil
}

func buildFilterForFile(ctx context.Context, idx int, path string, filters []*bloom.BloomFilter) func() error {
	return func() error {
		filter := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
		var count uint64

		if err := streamGzFile(ctx, path, func(line string) {
			id, _, ok := parseOfferLine(line)
			if !ok {
				return
			}
			filter.AddString(id)
			count++
			if count%progressEvery == 0 {
				slog.Info("pass 1 progress",
					slog.Int("file", idx+1),
					slog.Uint64("offers", count),
				)
			}
		}); err != nil {
			return errors.Wrapf(err, "build filter for file %d", idx+1)
		}

		slog.Info("pass 1 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_offers", count),
		)

		filters[idx] = filter
		return nil
	}
}

// findConfirmedOffers re-streams each file and checks medicine IDs against
// OTHER files' bloom filters. An offer is confirmed if its medicine appears
// in 2 or more files; the lowest price across all files is kept.
func findConfirmedOffers(ctx context.Context, files []string, filters []*bloom.BloomFilter) (map[string]decimal.Decimal, error) {
	results := make([]fileResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(findOffersInFile(ctx, i, f, filters, results))
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge bitmasks and minimum prices from all files.
	merged := make(map[string]offer)
	for _, r := range results {
		for id, o := range r.offers {
			m, ok := merged[id]
			if !ok {
				merged[id] = o
				continue
			}
			m.fileMask |= o.fileMask
			if o.price.LessThan(m.price) {
				m.price = o.price
			}
			merged[id] = m
		}
	}

	// Keep offers appearing in 2+ files.
	confirmed := make(map[string]decimal.Decimal)
	for id, o := range merged {
		if bits.OnesCount(o.fileMask) >= 2 {
			confirmed[id] = o.price
		}
	}

	return confirmed, nil
}

func findOffersInFile(
	ctx context.Context,
	idx int,
	path string,
	filters []*bloom.BloomFilter,
	results []fileResult,
) func() error {
	return func() error {
		offers := make(map[string]offer)
		fileBit := uint(1) << uint(idx)
		var count uint64

		if err := streamGzFile(ctx, path, func(line string) {
			id, price, ok := parseOfferLine(line)
			if !ok {
				return
			}

			count++
			if count%progressEvery == 0 {
				slog.Info("pass 2 progress",
					slog.Int("file", idx+1),
					slog.Uint64("offers", count),
				)
			}

			// Check if this medicine appears in any OTHER file's bloom filter.
			for j, f := range filters {
				if j == idx {
					continue
				}
				if f.TestString(id) {
					o, seen := offers[id]
					if !seen || price.LessThan(o.price) {
						o.price = price
					}
					o.fileMask |= fileBit
					offers[id] = o
					break
				}
			}
		}); err != nil {
			return errors.Wrapf(err, "scan file %d for offers", idx+1)
		}

		slog.Info("pass 2 complete",
			slog.Int("file", idx+1),
			slog.Uint64("total_offers", count),
			slog.Int("candidates", len(offers)),
		)

		results[idx] = fileResult{offers: offers}
		return nil
	}
}

// parseOfferLine splits a `medicine_id;price` line. Malformed lines and
// non-positive prices are skipped.
func parseOfferLine(line string) (id string, price decimal.Decimal, ok bool) {
	id, rawPrice, found := strings.Cut(line, ";")
	if !found || id == "" {
		return "", decimal.Decimal{}, false
	}
	price, err := decimal.NewFromString(strings.TrimSpace(rawPrice))
	if err != nil || !price.IsPositive() {
		return "", decimal.Decimal{}, false
	}
	return id, price.Round(2), true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(scanner.Text())
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

const updateWholesalePriceSQL = `
	UPDATE medicines SET wholesale_price = $2 WHERE id = $1`

// applyOffers writes confirmed wholesale prices to the catalog. Offers for
// medicines not present in the catalog are counted and skipped.
func applyOffers(ctx context.Context, pool *pgxpool.Pool, confirmed map[string]decimal.Decimal) error {
	slog.Info("applying offers to catalog", slog.Int("count", len(confirmed)))

	var written, skipped, i int
	for id, price := range confirmed {
		tag, err := pool.Exec(ctx, updateWholesalePriceSQL, id, price)
		if err != nil {
			return errors.Wrapf(err, "update wholesale price for %s", id)
		}
		if tag.RowsAffected() == 0 {
			skipped++
		} else {
			written++
		}

		i++
		if i%100 == 0 || i == len(confirmed) {
			slog.Info("write progress", slog.Int("processed", i), slog.Int("total", len(confirmed)))
		}
	}

	slog.Info("offers applied", slog.Int("updated", written), slog.Int("unknown_skipped", skipped))

	return nil
}
