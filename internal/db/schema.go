package db

const noteTable = "clinical_note"

// SchemaSQL defines the clinical note table. The note body lives either in
// soap (unencrypted deployments) or in encrypted_payload.
const SchemaSQL = `
    DEFINE TABLE IF NOT EXISTS clinical_note SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS patient_id ON clinical_note TYPE string;
    DEFINE FIELD IF NOT EXISTS session_id ON clinical_note TYPE string;
    DEFINE FIELD IF NOT EXISTS soap ON clinical_note TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS encrypted_payload ON clinical_note TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS created ON clinical_note TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS clinical_note_patient ON clinical_note FIELDS patient_id;
    DEFINE INDEX IF NOT EXISTS clinical_note_session ON clinical_note FIELDS session_id;
    DEFINE INDEX IF NOT EXISTS clinical_note_created ON clinical_note FIELDS created;
`
