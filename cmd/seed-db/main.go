// Binary seed-db loads the reference data the order API reads: demo users
// with addresses, shipping methods, products, and API keys. Safe to re-run.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/orderdesk/internal/storage/postgres"
)

type productJSON struct {
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		customerKey  string
		adminKey     string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&customerKey, "customer-key", "", "customer API key to seed (or ORDERS_SEED_CUSTOMER_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "privileged API key to seed (or ORDERS_SEED_ADMIN_KEY env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if customerKey == "" {
		customerKey = os.Getenv("ORDERS_SEED_CUSTOMER_KEY")
	}
	if adminKey == "" {
		adminKey = os.Getenv("ORDERS_SEED_ADMIN_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, productsFile, customerKey, adminKey); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile, customerKey, adminKey string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedUsers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed users")
	}
	if err := seedShippingMethods(ctx, pool); err != nil {
		return errors.Wrap(err, "seed shipping methods")
	}
	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if customerKey != "" {
		if err := seedAPIKey(ctx, pool, customerKey, "demo-user@example.com", "Demo customer key", false); err != nil {
			return errors.Wrap(err, "seed customer api key")
		}
	}
	if adminKey != "" {
		if err := seedAPIKey(ctx, pool, adminKey, "demo-admin@example.com", "Demo admin key", true); err != nil {
			return errors.Wrap(err, "seed admin api key")
		}
	}

	return nil
}

type demoUser struct {
	name, email, phone                 string
	addrLine1, city, postcode, country string
}

var demoUsers = []demoUser{
	{"Demo User", "demo-user@example.com", "+44 20 7946 0001", "12 Analytical Way", "London", "N1 9GU", "GB"},
	{"Demo Admin", "demo-admin@example.com", "+44 20 7946 0002", "1 Operations Road", "London", "EC1A 1BB", "GB"},
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) error {
	for _, u := range demoUsers {
		var userID int64
		err := pool.QueryRow(ctx, `
			INSERT INTO users (name, email, phone)
			VALUES ($1, $2, $3)
			ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, phone = EXCLUDED.phone
			RETURNING user_id`, u.name, u.email, u.phone).Scan(&userID)
		if err != nil {
			return errors.Wrapf(err, "upsert user %s", u.email)
		}

		// Each demo user gets one address; skip when it already exists.
		var hasAddress bool
		if err := pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM addresses WHERE user_id = $1)`, userID).Scan(&hasAddress); err != nil {
			return errors.Wrapf(err, "check addresses for %s", u.email)
		}
		if !hasAddress {
			_, err = pool.Exec(ctx, `
				INSERT INTO addresses (user_id, line1, city, postcode, country)
				VALUES ($1, $2, $3, $4, $5)`, userID, u.addrLine1, u.city, u.postcode, u.country)
			if err != nil {
				return errors.Wrapf(err, "insert address for %s", u.email)
			}
		}

		slog.Info("seeded user", slog.String("email", u.email), slog.Int64("id", userID))
	}
	return nil
}

func seedShippingMethods(ctx context.Context, pool *pgxpool.Pool) error {
	methods := []struct {
		name string
		cost string
	}{
		{"Standard", "4.99"},
		{"Express", "9.99"},
		{"Next Day", "14.99"},
	}
	for _, m := range methods {
		_, err := pool.Exec(ctx, `
			INSERT INTO shipping_methods (name, cost)
			SELECT $1, $2
			WHERE NOT EXISTS (SELECT 1 FROM shipping_methods WHERE name = $1)`, m.name, m.cost)
		if err != nil {
			return errors.Wrapf(err, "insert shipping method %s", m.name)
		}
	}
	slog.Info("seeded shipping methods", slog.Int("count", len(methods)))
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	for _, p := range products {
		_, err := pool.Exec(ctx, `
			INSERT INTO products (name, price)
			SELECT $1, $2
			WHERE NOT EXISTS (SELECT 1 FROM products WHERE name = $1)`, p.Name, p.Price)
		if err != nil {
			return errors.Wrapf(err, "insert product %s", p.Name)
		}
	}

	slog.Info("seeded products", slog.Int("count", len(products)))
	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, key, ownerEmail, name string, privileged bool) error {
	hash := sha256.Sum256([]byte(key))
	keyHash := hex.EncodeToString(hash[:])

	_, err := pool.Exec(ctx, `
		INSERT INTO api_keys (key_hash, user_id, name, privileged)
		SELECT $1, user_id, $3, $4 FROM users WHERE email = $2
		ON CONFLICT (key_hash) DO UPDATE SET name = EXCLUDED.name, privileged = EXCLUDED.privileged`,
		keyHash, ownerEmail, name, privileged)
	if err != nil {
		return errors.Wrapf(err, "upsert api key %s", name)
	}

	slog.Info("seeded api key", slog.String("name", name), slog.Bool("privileged", privileged))
	return nil
}
