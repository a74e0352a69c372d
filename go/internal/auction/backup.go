package auction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mcdev12/vanguard/go/internal/models"
)

// MaxBackupSize bounds the decoded size of an imported backup.
const MaxBackupSize = 16 << 20

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

const backupSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "shuffleSeed", "queue", "students", "vanguards", "timer"],
  "properties": {
    "version": {"const": 1},
    "shuffleSeed": {"type": "string"},
    "queue": {"type": "array", "items": {"type": "string"}, "uniqueItems": true},
    "students": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["id", "name", "status"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "identifierCode": {"type": "string"},
          "imageUrl": {"type": "string"},
          "status": {"enum": ["available", "sold", "unsold"]},
          "soldTo": {"type": "string"},
          "soldPrice": {"type": "integer", "minimum": 0}
        }
      }
    },
    "vanguards": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["id", "name", "budget", "spent", "squad"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "colorTag": {"type": "string"},
          "budget": {"type": "integer", "minimum": 0},
          "spent": {"type": "integer", "minimum": 0},
          "squad": {"type": "array"},
          "leader": {"type": "string"}
        }
      }
    },
    "timer": {
      "type": "object",
      "required": ["duration"],
      "properties": {
        "startedAt": {"type": ["string", "null"]},
        "duration": {"type": "integer", "minimum": 1},
        "pausedRemaining": {"type": ["integer", "null"], "minimum": 0}
      }
    },
    "lastAction": {"type": ["object", "null"]},
    "globalFreeze": {"type": "boolean"},
    "activeAnnouncement": {"type": ["string", "null"]},
    "sfxTrigger": {"type": ["object", "null"]},
    "updatedAt": {"type": "string"}
  }
}`

var schema = jsonschema.MustCompileString("backup.schema.json", backupSchema)

// BackupFilename names an export taken at now.
func BackupFilename(now time.Time, compressed bool) string {
	stamp := now.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	name := "auction-backup-" + stamp + ".json"
	if compressed {
		name += ".zst"
	}
	return name
}

// ExportBackup writes the full state as indented JSON, zstd compressed
// when compress is set.
func (s *Store) ExportBackup(ctx context.Context, w io.Writer, compress bool) error {
	st, err := s.State(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	if !compress {
		_, err = w.Write(data)
		return err
	}

	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return fmt.Errorf("compress backup: %w", err)
	}
	return enc.Close()
}

// DecodeBackup parses and validates a backup. Compressed input is
// detected by its magic number.
func DecodeBackup(r io.Reader) (*models.AuctionState, error) {
	raw, err := io.ReadAll(io.LimitReader(r, MaxBackupSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrInvalidBackup, err)
	}
	if bytes.HasPrefix(raw, zstdMagic) {
		dec, err := zstd.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
		}
		raw, err = io.ReadAll(io.LimitReader(dec, MaxBackupSize+1))
		dec.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrInvalidBackup, err)
		}
	}
	if len(raw) > MaxBackupSize {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrInvalidBackup, MaxBackupSize)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}

	var st models.AuctionState
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBackup, err)
	}
	return &st, nil
}

// ImportBackup replaces the current state with a decoded backup.
func (s *Store) ImportBackup(ctx context.Context, r io.Reader) (*models.AuctionState, error) {
	st, err := DecodeBackup(r)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected backup import")
		return nil, err
	}
	next, err := s.RestoreState(ctx, st, OriginLocal)
	if err != nil {
		return nil, err
	}
	s.record(models.ActionEntry{Type: models.ActionImport})
	return next, nil
}
