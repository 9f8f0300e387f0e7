package store

import (
	"companion.app/relay/core/db"
)

type Stores struct {
	db *db.DB
}

func NewStores(database *db.DB) *Stores {
	return &Stores{db: database}
}

func (s *Stores) Sessions() SessionStore {
	return newSessionStore(s.db)
}

func (s *Stores) VoiceProfiles() VoiceProfileStore {
	return newVoiceProfileStore(s.db)
}

func (s *Stores) Tasks() TaskStore {
	return newTaskStore(s.db)
}

func (s *Stores) Contacts() ContactStore {
	return newContactStore(s.db)
}
