package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/viafarma/storefront/internal/domain/customer"
)

const (
	getCustomerByUserSQL = `SELECT id, user_id, name, email, cpf_cnpj, phone1,
		COALESCE(phone2, ''), cep, address, address_number, address_type,
		municipio, estado, COALESCE(reference, '')
		FROM customers WHERE user_id = $1`

	upsertCustomerSQL = `INSERT INTO customers (id, user_id, name, email, cpf_cnpj,
		phone1, phone2, cep, address, address_number, address_type,
		municipio, estado, reference)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9, $10, $11, $12, $13, NULLIF($14, ''))
		ON CONFLICT (user_id) DO UPDATE SET
			name = EXCLUDED.name,
			email = EXCLUDED.email,
			cpf_cnpj = EXCLUDED.cpf_cnpj,
			phone1 = EXCLUDED.phone1,
			phone2 = EXCLUDED.phone2,
			cep = EXCLUDED.cep,
			address = EXCLUDED.address,
			address_number = EXCLUDED.address_number,
			address_type = EXCLUDED.address_type,
			municipio = EXCLUDED.municipio,
			estado = EXCLUDED.estado,
			reference = EXCLUDED.reference`
)

var _ customer.Repository = (*CustomerRepository)(nil)

// CustomerRepository implements customer.Repository backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// FindByUserID returns the profile owned by the given principal.
func (r *CustomerRepository) FindByUserID(ctx context.Context, userID string) (*customer.Customer, error) {
	rows, err := r.pool.Query(ctx, getCustomerByUserSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("getting customer for user %q: %w", userID, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCustomer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer for user %q: %w", userID, err)
	}
	return &c, nil
}

// Upsert creates or updates the profile keyed by Customer.UserID.
func (r *CustomerRepository) Upsert(ctx context.Context, c *customer.Customer) error {
	_, err := r.pool.Exec(ctx, upsertCustomerSQL,
		c.ID, c.UserID, c.Name, c.Email, c.CpfCnpj,
		c.Phone1, c.Phone2, c.Cep, c.Address, c.AddressNumber,
		c.AddressType, c.Municipio, c.Estado, c.Reference,
	)
	if err != nil {
		return fmt.Errorf("upserting customer for user %q: %w", c.UserID, err)
	}
	return nil
}

func scanCustomer(row pgx.CollectableRow) (customer.Customer, error) {
	var c customer.Customer
	err := row.Scan(
		&c.ID, &c.UserID, &c.Name, &c.Email, &c.CpfCnpj, &c.Phone1,
		&c.Phone2, &c.Cep, &c.Address, &c.AddressNumber, &c.AddressType,
		&c.Municipio, &c.Estado, &c.Reference,
	)
	return c, err
}
