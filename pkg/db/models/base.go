package models

import "github.com/google/uuid"

// assignID fills a uuid primary key before insert. Postgres defaults are not
// relied on so the same models migrate under sqlite.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
