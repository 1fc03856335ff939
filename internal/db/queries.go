package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/raphaelgruber/physio-scribe/internal/models"
	"github.com/raphaelgruber/physio-scribe/internal/seal"
)

// SaveNote creates one clinical_note record and returns its ID. With a
// sealer configured the note is stored only as an encrypted payload.
func (c *Client) SaveNote(ctx context.Context, note models.StructuredNote, patientID, sessionID string) (string, error) {
	id := uuid.NewString()
	vars := map[string]any{
		"id":         id,
		"patient_id": patientID,
		"session_id": sessionID,
	}

	sets := []string{"patient_id = $patient_id", "session_id = $session_id", "created = time::now()"}
	if c.sealer != nil {
		payload, err := sealNote(c.sealer, note)
		if err != nil {
			return "", err
		}
		vars["encrypted_payload"] = payload
		sets = append(sets, "encrypted_payload = $encrypted_payload")
	} else {
		vars["soap"] = note
		sets = append(sets, "soap = $soap")
	}

	sql := fmt.Sprintf(`CREATE type::record("%s", $id) SET %s RETURN AFTER`, noteTable, strings.Join(sets, ", "))
	results, err := surrealdb.Query[[]models.StoredNote](ctx, c.db, sql, vars)
	if err != nil {
		return "", fmt.Errorf("save note: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return "", fmt.Errorf("save note: no result returned")
	}
	return id, nil
}

// GetNote retrieves one note by ID, decrypting its payload when possible.
func (c *Client) GetNote(ctx context.Context, id string) (*models.StoredNote, error) {
	results, err := surrealdb.Query[[]models.StoredNote](ctx, c.db,
		fmt.Sprintf(`SELECT * FROM type::record("%s", $id)`, noteTable),
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get note: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	note := (*results)[0].Result[0]
	c.openPayload(&note)
	return &note, nil
}

// GetAllNotes returns every persisted note, oldest first. Payloads that
// cannot be decrypted leave SOAP nil for the integrity audit to report.
func (c *Client) GetAllNotes(ctx context.Context) ([]models.StoredNote, error) {
	results, err := surrealdb.Query[[]models.StoredNote](ctx, c.db,
		fmt.Sprintf(`SELECT * FROM %s ORDER BY created ASC`, noteTable), nil)
	if err != nil {
		return nil, fmt.Errorf("get all notes: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return []models.StoredNote{}, nil
	}

	notes := (*results)[0].Result
	for i := range notes {
		c.openPayload(&notes[i])
	}
	return notes, nil
}

// DeleteNote removes a note. Returns the number of records deleted.
func (c *Client) DeleteNote(ctx context.Context, id string) (int, error) {
	results, err := surrealdb.Query[[]models.StoredNote](ctx, c.db,
		fmt.Sprintf(`DELETE type::record("%s", $id) RETURN BEFORE`, noteTable),
		map[string]any{"id": id})
	if err != nil {
		return 0, fmt.Errorf("delete note: %w", wrapQueryError(err))
	}
	if results == nil || len(*results) == 0 {
		return 0, nil
	}
	return len((*results)[0].Result), nil
}

func (c *Client) openPayload(note *models.StoredNote) {
	if note.SOAP != nil || note.EncryptedPayload == "" || c.sealer == nil {
		return
	}
	soap, err := openNote(c.sealer, note.EncryptedPayload)
	if err != nil {
		c.logger.Warn("note payload could not be decrypted", "note_id", note.NoteID(), "error", err)
		return
	}
	note.SOAP = soap
}

func sealNote(s *seal.Sealer, note models.StructuredNote) (string, error) {
	data, err := json.Marshal(note)
	if err != nil {
		return "", fmt.Errorf("marshal note: %w", err)
	}
	payload, err := s.Seal(data)
	if err != nil {
		return "", fmt.Errorf("seal note: %w", err)
	}
	return payload, nil
}

func openNote(s *seal.Sealer, payload string) (*models.StructuredNote, error) {
	data, err := s.Open(payload)
	if err != nil {
		return nil, err
	}
	var note models.StructuredNote
	if err := json.Unmarshal(data, &note); err != nil {
		return nil, errors.Join(errors.New("decode note payload"), err)
	}
	return &note, nil
}
