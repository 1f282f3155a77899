package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Question{},
		&QueueEntry{},
		&Match{},
		&MatchParticipant{},
		&MatchQuestion{},
		&Answer{},
	}
}
