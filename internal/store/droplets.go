package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/cedros/claw-spawn/internal/model"
)

type dropletRow struct {
	ID          int64      `db:"id"`
	Name        string     `db:"name"`
	Region      string     `db:"region"`
	Size        string     `db:"size"`
	Image       string     `db:"image"`
	Status      string     `db:"status"`
	IPAddress   *string    `db:"ip_address"`
	BotID       *uuid.UUID `db:"bot_id"`
	CreatedAt   time.Time  `db:"created_at"`
	DestroyedAt *time.Time `db:"destroyed_at"`
}

func (r dropletRow) toModel() (*model.Droplet, error) {
	status, err := model.ParseDropletStatus(r.Status)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidData, "droplet %d: %v", r.ID, err)
	}
	return &model.Droplet{
		ID:          r.ID,
		Name:        r.Name,
		Region:      r.Region,
		Size:        r.Size,
		Image:       r.Image,
		Status:      status,
		IPAddress:   r.IPAddress,
		BotID:       r.BotID,
		CreatedAt:   r.CreatedAt,
		DestroyedAt: r.DestroyedAt,
	}, nil
}

const dropletColumns = `id, name, region, size, image, status, ip_address,
	bot_id, created_at, destroyed_at`

func (s *Store) CreateDroplet(ctx context.Context, droplet *model.Droplet) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO droplets (id, name, region, size, image, status, ip_address,
		                       bot_id, created_at, destroyed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		droplet.ID, droplet.Name, droplet.Region, droplet.Size, droplet.Image,
		string(droplet.Status), droplet.IPAddress, droplet.BotID,
		droplet.CreatedAt, droplet.DestroyedAt)
	return errors.Wrap(err, "failed to insert droplet")
}

func (s *Store) GetDropletByID(ctx context.Context, id int64) (*model.Droplet, error) {
	var row dropletRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+dropletColumns+` FROM droplets WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Wrapf(ErrNotFound, "droplet %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to query droplet")
	}
	return row.toModel()
}

func (s *Store) UpdateDropletBotAssignment(ctx context.Context, dropletID int64, botID *uuid.UUID) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE droplets SET bot_id = $1 WHERE id = $2`, botID, dropletID)
	return errors.Wrap(err, "failed to update droplet bot assignment")
}

func (s *Store) UpdateDropletStatus(ctx context.Context, dropletID int64, status model.DropletStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE droplets SET status = $1 WHERE id = $2`, string(status), dropletID)
	return errors.Wrap(err, "failed to update droplet status")
}

func (s *Store) UpdateDropletIP(ctx context.Context, dropletID int64, ip *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE droplets SET ip_address = $1 WHERE id = $2`, ip, dropletID)
	return errors.Wrap(err, "failed to update droplet ip")
}

// MarkDropletDestroyed records the terminal state and when it was
// reached. Idempotent; destroying an already-destroyed row keeps the
// original timestamp.
func (s *Store) MarkDropletDestroyed(ctx context.Context, dropletID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE droplets
		 SET status = 'destroyed', destroyed_at = COALESCE(destroyed_at, $1)
		 WHERE id = $2`,
		time.Now().UTC(), dropletID)
	return errors.Wrap(err, "failed to mark droplet destroyed")
}
