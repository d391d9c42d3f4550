package services

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
)

// FirestoreStore keeps the state document as a single Firestore document.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
	document   string
}

// NewFirestoreStore creates a FirestoreStore backed by collection/document.
func NewFirestoreStore(client *firestore.Client, collection, document string) *FirestoreStore {
	return &FirestoreStore{
		client:     client,
		collection: collection,
		document:   document,
	}
}

func (s *FirestoreStore) ref() *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(s.document)
}

// Load reads and validates the state document.
func (s *FirestoreStore) Load(ctx context.Context) (*models.BotConfig, error) {
	snap, err := s.ref().Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%w: %s/%s", ErrStateNotFound, s.collection, s.document)
		}
		log.Error(ctx, "Failed to get state document",
			"error", err,
			"collection", s.collection,
			"document", s.document,
			"operation", "get_state_document",
		)
		return nil, fmt.Errorf("failed to get state document: %w", err)
	}

	var doc models.BotConfig
	if err := snap.DataTo(&doc); err != nil {
		log.Error(ctx, "Failed to unmarshal state document",
			"error", err,
			"collection", s.collection,
			"document", s.document,
			"operation", "unmarshal_state_document",
		)
		return nil, fmt.Errorf("failed to unmarshal state document: %w", err)
	}

	return prepareLoaded(&doc)
}

// Save overwrites the state document.
func (s *FirestoreStore) Save(ctx context.Context, doc *models.BotConfig) error {
	if _, err := s.ref().Set(ctx, doc); err != nil {
		log.Error(ctx, "Failed to save state document",
			"error", err,
			"collection", s.collection,
			"document", s.document,
			"operation", "save_state_document",
		)
		return fmt.Errorf("failed to save state document: %w", err)
	}
	return nil
}
