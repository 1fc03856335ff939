package models

import (
	"time"

	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// RepetitionCheck reports phrases repeated beyond normal writing frequency.
type RepetitionCheck struct {
	HasRepetition   bool     `json:"has_repetition"`
	RepeatedPhrases []string `json:"repeated_phrases"`
}

// ValidationResult is computed fresh for every note.
type ValidationResult struct {
	IsValid         bool            `json:"is_valid"`
	Errors          []string        `json:"errors"`
	Warnings        []string        `json:"warnings"`
	TotalCharacters int             `json:"total_characters"`
	RepetitionCheck RepetitionCheck `json:"repetition_check"`
}

// PersistenceResult describes one save attempt sequence, retries included.
type PersistenceResult struct {
	Success    bool   `json:"success"`
	NoteID     string `json:"note_id,omitempty"`
	Error      string `json:"error,omitempty"`
	Retries    int    `json:"retries"`
	UsedBackup bool   `json:"used_backup"`
}

// BackupRecord is a locally persisted snapshot awaiting a durable save.
type BackupRecord struct {
	Key       string         `json:"key"`
	SOAPData  StructuredNote `json:"soap_data"`
	PatientID string         `json:"patient_id"`
	SessionID string         `json:"session_id"`
	Timestamp time.Time      `json:"timestamp"`
}

// StoredNote is a persisted note as read back from the primary store.
type StoredNote struct {
	ID               surrealmodels.RecordID `json:"id"`
	PatientID        string                 `json:"patient_id"`
	SessionID        string                 `json:"session_id"`
	SOAP             *StructuredNote        `json:"soap,omitempty"`
	EncryptedPayload string                 `json:"encrypted_payload,omitempty"`
	Created          time.Time              `json:"created,omitempty"`
}
