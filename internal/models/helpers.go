package models

import (
	"fmt"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}

// NoteID returns the string form of a stored note's record ID, or "" when
// the record carries no usable identifier.
func (n StoredNote) NoteID() string {
	s, err := RecordIDString(n.ID)
	if err != nil {
		return ""
	}
	return s
}
