package persistence

import (
	"encoding/json"
	"fmt"
)

// SchemaVersion is stamped on every blob this build writes.
const SchemaVersion = 1

// VersionedBlob is the envelope every driver stores records in. Payload is
// the JSON encoding of one domain record.
type VersionedBlob struct {
	SchemaVersion int             `json:"schema_version"`
	Payload       json.RawMessage `json:"payload"`
}

// MigrationFunc upgrades a payload from one schema version to the next.
type MigrationFunc func(payload json.RawMessage) (json.RawMessage, error)

// Migrations maps a from-version to the function that upgrades payloads
// written at that version. Version N's function produces a version N+1
// payload.
type Migrations map[int]MigrationFunc

// EncodeBlob marshals a record into a blob stamped with the current schema
// version.
func EncodeBlob(record any) (*VersionedBlob, error) {
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	return &VersionedBlob{
		SchemaVersion: SchemaVersion,
		Payload:       payload,
	}, nil
}

// DecodeBlob runs the payload through any pending migrations and unmarshals
// it into record. Blobs newer than this build are rejected.
func DecodeBlob(blob *VersionedBlob, record any, migrations Migrations) error {
	if blob.SchemaVersion > SchemaVersion {
		return fmt.Errorf("%w: blob has version %d, this build supports up to %d",
			ErrUnsupportedSchemaVersion, blob.SchemaVersion, SchemaVersion)
	}

	payload := blob.Payload

	for version := blob.SchemaVersion; version < SchemaVersion; version++ {
		migrate, ok := migrations[version]
		if !ok {
			return fmt.Errorf("%w: no migration from version %d", ErrUnsupportedSchemaVersion, version)
		}

		upgraded, err := migrate(payload)
		if err != nil {
			return fmt.Errorf("migration from version %d failed: %w", version, err)
		}

		payload = upgraded
	}

	if err := json.Unmarshal(payload, record); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return nil
}
