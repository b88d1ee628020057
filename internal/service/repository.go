package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

var ErrOfferingNotFound = errors.New("service offering not found")

const offeringColumns = "id, creator_id, title, description, rate_cents, active, created_at"

type repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, creatorID int, title, description string, rateCents int64) (*Offering, error) {
	query := `
		INSERT INTO service_offerings (creator_id, title, description, rate_cents)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + offeringColumns

	var o Offering
	if err := r.db.GetContext(ctx, &o, query, creatorID, title, description, rateCents); err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *repository) GetByID(ctx context.Context, id int) (*Offering, error) {
	var o Offering
	err := r.db.GetContext(ctx, &o, `SELECT `+offeringColumns+` FROM service_offerings WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOfferingNotFound
	}
	if err != nil {
		return nil, err
	}

	return &o, nil
}

func (r *repository) ListActive(ctx context.Context) ([]Offering, error) {
	var offerings []Offering
	err := r.db.SelectContext(ctx, &offerings, `
		SELECT `+offeringColumns+`
		FROM service_offerings
		WHERE active = TRUE
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}

	return offerings, nil
}

func (r *repository) ListByCreator(ctx context.Context, creatorID int) ([]Offering, error) {
	var offerings []Offering
	err := r.db.SelectContext(ctx, &offerings, `
		SELECT `+offeringColumns+`
		FROM service_offerings
		WHERE creator_id = $1
		ORDER BY created_at DESC
	`, creatorID)
	if err != nil {
		return nil, err
	}

	return offerings, nil
}

func (r *repository) Deactivate(ctx context.Context, id, creatorID int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE service_offerings
		SET active = FALSE
		WHERE id = $1 AND creator_id = $2
	`, id, creatorID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrOfferingNotFound
	}

	return nil
}
