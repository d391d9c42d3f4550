package services

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	"discord-issue-bot/internal/config"
	"discord-issue-bot/internal/log"
	"discord-issue-bot/internal/models"
)

// ErrStateNotFound is returned by Load when no state document has been written yet.
var ErrStateNotFound = errors.New("state document not found")

// StateStore loads and saves the bot state document as a whole.
type StateStore interface {
	Load(ctx context.Context) (*models.BotConfig, error)
	Save(ctx context.Context, doc *models.BotConfig) error
}

// NewStateStore builds the store selected by the configuration. The returned
// close function releases backend resources and is never nil.
func NewStateStore(ctx context.Context, cfg *config.Config) (StateStore, func() error, error) {
	switch cfg.StateBackend {
	case config.StateBackendFirestore:
		client, err := firestore.NewClientWithDatabase(ctx, cfg.FirestoreProjectID, cfg.FirestoreDatabaseID)
		if err != nil {
			log.Error(ctx, "Failed to create Firestore client",
				"error", err,
				"project_id", cfg.FirestoreProjectID,
				"database_id", cfg.FirestoreDatabaseID,
				"operation", "create_firestore_client",
			)
			return nil, nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		store := NewFirestoreStore(client, cfg.FirestoreCollection, cfg.FirestoreDocument)
		return store, client.Close, nil
	case config.StateBackendFile:
		store := NewFileStore(cfg.StatePath)
		log.Debug(ctx, "Using file state store", "path", store.Path())
		return store, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("%w: %s", config.ErrInvalidStateBackend, cfg.StateBackend)
	}
}

// LoadOrInit loads the state document, starting from an empty one when none
// exists yet.
func LoadOrInit(ctx context.Context, store StateStore) (*models.BotConfig, error) {
	doc, err := store.Load(ctx)
	if errors.Is(err, ErrStateNotFound) {
		log.Warn(ctx, "No state document found, starting with empty state")
		return models.NewBotConfig(), nil
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func prepareLoaded(doc *models.BotConfig) (*models.BotConfig, error) {
	if doc.Servers == nil {
		doc.Servers = make(map[string]*models.ServerProfile)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid state document: %w", err)
	}
	return doc, nil
}
