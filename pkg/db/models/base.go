package models

import "github.com/google/uuid"

// ensureID assigns a random UUID when the primary key is still zero. Postgres
// also defaults ids with gen_random_uuid(); setting them client-side keeps
// inserts portable to the SQLite databases used in tests.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
