package store

import (
	"context"
	"fmt"

	"companion.app/relay/core/db"
	"companion.app/relay/internal/model"
)

type contactStore struct {
	db *db.DB
}

func newContactStore(database *db.DB) ContactStore {
	return &contactStore{db: database}
}

func (s *contactStore) Upsert(ctx context.Context, contact *model.Contact) error {
	_, err := s.db.Queries().ExecContext(ctx, s.db.Rebind(`
		INSERT INTO contacts (id, device_id, name) VALUES (?, ?, ?)
		ON CONFLICT (device_id, name) DO NOTHING`),
		contact.ID, contact.DeviceID, contact.Name)
	if err != nil {
		return fmt.Errorf("upserting contact: %w", err)
	}
	return nil
}

func (s *contactStore) ListByDevice(ctx context.Context, deviceID string) ([]model.Contact, error) {
	rows, err := s.db.Queries().QueryContext(ctx, s.db.Rebind(`
		SELECT id, device_id, name FROM contacts
		WHERE device_id = ?
		ORDER BY name ASC`), deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing contacts: %w", err)
	}
	defer rows.Close()

	var contacts []model.Contact
	for rows.Next() {
		var c model.Contact
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.Name); err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
