package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"github.com/solarledger/solarledger/pkg/log"
	"github.com/solarledger/solarledger/pkg/types"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	firestoreSessions = "sessions"
	firestorePresets  = "presets"
)

// FirestoreProvider implements Database using Google Cloud Firestore.
// Records are stored as a JSON string in the "json" field of each document.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

var _ Database = (*FirestoreProvider)(nil)

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// an empty project id is detected from the environment
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

func sessionDocID(account string) string {
	if account == "" {
		return "default"
	}
	return account
}

func decodeJSONField(doc *firestore.DocumentSnapshot, dest any) error {
	val, err := doc.DataAt("json")
	if err != nil {
		return fmt.Errorf("document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		return fmt.Errorf("document %s 'json' field is not a string", doc.Ref.ID)
	}
	if err := json.Unmarshal([]byte(jsonStr), dest); err != nil {
		return fmt.Errorf("failed to unmarshal %s json: %w", doc.Ref.ID, err)
	}
	return nil
}

// GetSession retrieves the session stored for account.
func (f *FirestoreProvider) GetSession(ctx context.Context, account string) (types.Session, error) {
	doc, err := f.client.Collection(firestoreSessions).Doc(sessionDocID(account)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, account)
		}
		return types.Session{}, fmt.Errorf("failed to fetch session doc: %w", err)
	}
	var s types.Session
	if err := decodeJSONField(doc, &s); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "invalid session doc", slog.String("account", account), slog.Any("error", err))
		return types.Session{}, err
	}
	return s, nil
}

// SetSession saves session, replacing any earlier one for the same account.
func (f *FirestoreProvider) SetSession(ctx context.Context, session types.Session) error {
	jsonBytes, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = f.client.Collection(firestoreSessions).Doc(sessionDocID(session.Account)).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"createdAt": session.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// ListPresets returns every preset ordered by id.
func (f *FirestoreProvider) ListPresets(ctx context.Context) ([]types.Preset, error) {
	iter := f.client.Collection(firestorePresets).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	presets := []types.Preset{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate presets: %w", err)
		}
		var p types.Preset
		if err := decodeJSONField(doc, &p); err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping invalid preset doc", slog.String("id", doc.Ref.ID), slog.Any("error", err))
			continue
		}
		presets = append(presets, p)
	}
	return presets, nil
}

// GetPreset retrieves a single preset.
func (f *FirestoreProvider) GetPreset(ctx context.Context, id string) (types.Preset, error) {
	if id == "" {
		return types.Preset{}, fmt.Errorf("%w: empty id", ErrPresetNotFound)
	}
	doc, err := f.client.Collection(firestorePresets).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.Preset{}, fmt.Errorf("%w: %s", ErrPresetNotFound, id)
		}
		return types.Preset{}, fmt.Errorf("failed to fetch preset doc: %w", err)
	}
	var p types.Preset
	if err := decodeJSONField(doc, &p); err != nil {
		return types.Preset{}, err
	}
	return p, nil
}

// UpsertPreset creates or replaces a preset.
func (f *FirestoreProvider) UpsertPreset(ctx context.Context, preset types.Preset) error {
	if err := preset.Validate(); err != nil {
		return err
	}
	if preset.UpdatedAt.IsZero() {
		preset.UpdatedAt = time.Now().UTC()
	}
	jsonBytes, err := json.Marshal(preset)
	if err != nil {
		return fmt.Errorf("failed to marshal preset: %w", err)
	}
	_, err = f.client.Collection(firestorePresets).Doc(preset.ID).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"updatedAt": preset.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save preset: %w", err)
	}
	return nil
}

// DeletePreset removes a preset.
func (f *FirestoreProvider) DeletePreset(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrPresetNotFound)
	}
	ref := f.client.Collection(firestorePresets).Doc(id)
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrPresetNotFound, id)
		}
		return fmt.Errorf("failed to delete preset: %w", err)
	}
	return nil
}
