// Binary coupon-load bulk-loads coupon definitions from gzip-compressed
// JSONL files. Each line is one coupon object; duplicate codes across files
// are suppressed with a bloom filter and the first definition wins.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/orderdesk/internal/domain/coupon"
	"github.com/xenking/orderdesk/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	dateLayout    = "2006-01-02"
)

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("usage: coupon-load [flags] coupons1.jsonl.gz [coupons2.jsonl.gz ...]")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, files); err != nil {
		slog.Error("coupon load failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon load completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	loader := &loader{
		repo: postgres.NewCouponRepository(pool),
		seen: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, f := range files {
		g.Go(func() error {
			return loader.loadFile(ctx, f)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("all files loaded",
		slog.Uint64("loaded", loader.loaded),
		slog.Uint64("skipped", loader.skipped),
	)
	return nil
}

type loader struct {
	repo *postgres.CouponRepository

	mu      sync.Mutex
	seen    *bloom.BloomFilter
	loaded  uint64
	skipped uint64
}

// markSeen returns false when the code was (probably) already loaded. A
// bloom false positive drops a coupon; acceptable for bulk loads at the
// configured 0.1% rate.
func (l *loader) markSeen(code string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.seen.TestString(code) {
		l.skipped++
		return false
	}
	l.seen.AddString(code)
	l.loaded++
	return true
}

func (l *loader) loadFile(ctx context.Context, path string) error {
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

	var count uint64
	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		rule, err := parseCouponLine(line)
		if err != nil {
			return errors.Wrapf(err, "parse %s line %d", path, count+1)
		}
		count++

		if !l.markSeen(rule.Code) {
			continue
		}
		if err := l.repo.Upsert(ctx, rule); err != nil {
			return err
		}
		if count%progressEvery == 0 {
			slog.Info("load progress", slog.String("file", path), slog.Uint64("lines", count))
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	slog.Info("file loaded", slog.String("file", path), slog.Uint64("lines", count))
	return nil
}

// parseCouponLine decodes one JSONL coupon definition:
//
//	{"code":"SAVE10","type":"percent","discount":"10","valid_from":"2025-01-01",
//	 "valid_until":"2025-12-31","usage_limit":1000,"active":true}
func parseCouponLine(line string) (*coupon.Rule, error) {
	rule := &coupon.Rule{Active: true}

	d := jx.DecodeStr(line)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "code":
			code, err := d.Str()
			if err != nil {
				return err
			}
			rule.Code = strings.ToUpper(strings.TrimSpace(code))
			return nil
		case "type":
			kind, err := d.Str()
			if err != nil {
				return err
			}
			rule.Kind = coupon.Kind(kind)
			return nil
		case "discount":
			raw, err := d.Str()
			if err != nil {
				return err
			}
			rule.Discount, err = decimal.NewFromString(raw)
			return err
		case "valid_from":
			return decodeDate(d, &rule.ValidFrom)
		case "valid_until":
			return decodeDate(d, &rule.ValidUntil)
		case "usage_limit":
			if d.Next() == jx.Null {
				return d.Null()
			}
			n, err := d.Int()
			if err != nil {
				return err
			}
			rule.UsageLimit = &n
			return nil
		case "active":
			active, err := d.Bool()
			if err != nil {
				return err
			}
			rule.Active = active
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, err
	}

	if rule.Code == "" {
		return nil, errors.New("coupon code is required")
	}
	switch rule.Kind {
	case coupon.KindPercent, coupon.KindFixed:
	default:
		return nil, errors.Errorf("unknown discount type %q for code %s", rule.Kind, rule.Code)
	}
	return rule, nil
}

func decodeDate(d *jx.Decoder, dst **time.Time) error {
	if d.Next() == jx.Null {
		return d.Null()
	}
	raw, err := d.Str()
	if err != nil {
		return err
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return errors.Wrapf(err, "parse date %q", raw)
	}
	*dst = &t
	return nil
}
