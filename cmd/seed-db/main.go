// Command seed-db loads the sample catalog, a demo customer, and API keys
// into PostgreSQL. It is intended for local development and integration test
// environments.
package main

import (
	"context"
	"crypto/hmac"
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

	"github.com/viafarma/storefront/internal/repository"
)

type medicineJSON struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Dosage               string          `json:"dosage"`
	Type                 string          `json:"type"`
	Description          string          `json:"description"`
	Price                decimal.Decimal `json:"price"`
	WholesalePrice       decimal.Decimal `json:"wholesalePrice"`
	Stock                int             `json:"stock"`
	PromoPercent         int             `json:"promoPercent"`
	RequiresPrescription bool            `json:"requiresPrescription"`
	ExpiresAt            string          `json:"expiresAt"`
	Image                string          `json:"image"`
}

const (
	upsertMedicineSQL = `
		INSERT INTO medicines (id, name, dosage, type, description, price, wholesale_price,
		                       stock, promo_percent, requires_prescription, expires_at, image_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, '')::date, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			dosage = EXCLUDED.dosage,
			type = EXCLUDED.type,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			wholesale_price = EXCLUDED.wholesale_price,
			stock = EXCLUDED.stock,
			promo_percent = EXCLUDED.promo_percent,
			requires_prescription = EXCLUDED.requires_prescription,
			expires_at = EXCLUDED.expires_at,
			image_url = EXCLUDED.image_url`

	upsertCustomerSQL = `
		INSERT INTO customers (id, user_id, name, email, cpf_cnpj, phone1, cep,
		                       address, address_number, address_type, municipio, estado)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO NOTHING`

	upsertAPIKeySQL = `
		INSERT INTO api_keys (id, key_hash, name, user_id, scopes, active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			user_id = EXCLUDED.user_id,
			scopes = EXCLUDED.scopes,
			active = TRUE`
)

const demoUserID = "demo-user"

func main() {
	var (
		databaseURL   string
		medicinesFile string
		customerKey   string
		adminKey      string
		apiKeyPepper  string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&medicinesFile, "medicines-file", "db/seed/medicines.json", "path to medicines JSON file")
	flag.StringVar(&customerKey, "customer-key", "", "customer API key to seed (or FARMA_SEED_CUSTOMER_KEY env)")
	flag.StringVar(&adminKey, "admin-key", "", "admin API key to seed (or FARMA_SEED_ADMIN_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or FARMA_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if customerKey == "" {
		customerKey = os.Getenv("FARMA_SEED_CUSTOMER_KEY")
	}
	if customerKey == "" {
		slog.Error("customer API key is required: set --customer-key or FARMA_SEED_CUSTOMER_KEY")
		os.Exit(1)
	}
	if adminKey == "" {
		adminKey = os.Getenv("FARMA_SEED_ADMIN_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("FARMA_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, medicinesFile, customerKey, adminKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, medicinesFile, customerKey, adminKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMedicines(ctx, pool, medicinesFile); err != nil {
		return errors.Wrap(err, "seed medicines")
	}

	if err := seedDemoCustomer(ctx, pool); err != nil {
		return errors.Wrap(err, "seed demo customer")
	}

	if err := seedAPIKey(ctx, pool, "customer", "Demo customer key", demoUserID, customerKey, pepper, []string{"checkout"}); err != nil {
		return errors.Wrap(err, "seed customer api key")
	}

	if adminKey != "" {
		if err := seedAPIKey(ctx, pool, "admin", "Store admin key", "admin-user", adminKey, pepper, []string{"checkout", "admin"}); err != nil {
			return errors.Wrap(err, "seed admin api key")
		}
	}

	return nil
}

func seedMedicines(ctx context.Context, pool *pgxpool.Pool, medicinesFile string) error {
	slog.Info("reading medicines file", slog.String("path", medicinesFile))

	data, err := os.ReadFile(medicinesFile)
	if err != nil {
		return errors.Wrap(err, "read medicines file")
	}

	var medicines []medicineJSON
	if err := json.Unmarshal(data, &medicines); err != nil {
		return errors.Wrap(err, "parse medicines JSON")
	}

	slog.Info("upserting medicines", slog.Int("count", len(medicines)))

	for _, m := range medicines {
		if _, err := pool.Exec(ctx, upsertMedicineSQL,
			m.ID, m.Name, m.Dosage, m.Type, m.Description,
			m.Price, m.WholesalePrice, m.Stock, m.PromoPercent,
			m.RequiresPrescription, m.ExpiresAt, m.Image,
		); err != nil {
			return errors.Wrapf(err, "upsert medicine %s", m.ID)
		}

		slog.Info("upserted medicine", slog.String("id", m.ID), slog.String("name", m.Name))
	}

	return nil
}

func seedDemoCustomer(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo customer", slog.String("user_id", demoUserID))

	_, err := pool.Exec(ctx, upsertCustomerSQL,
		"cust-demo", demoUserID,
		"Maria da Silva", "maria@example.com", "123.456.789-09",
		"(11) 98765-4321", "01310-100",
		"Avenida Paulista", "1578", "Apartamento",
		"São Paulo", "SP",
	)
	if err != nil {
		return errors.Wrap(err, "upsert demo customer")
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, id, name, userID, apiKey, pepper string, scopes []string) error {
	slog.Info("seeding API key", slog.String("id", id), slog.String("name", name))

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL, id, keyHash, name, userID, scopes); err != nil {
		return errors.Wrapf(err, "upsert API key %s", id)
	}

	return nil
}
