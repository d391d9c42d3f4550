package testing

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	clearDataTimeout = 10 * time.Second
)

// Static errors.
var (
	ErrEmulatorClearFailed = errors.New("failed to clear emulator data")
)

// FirestoreEmulator is a connection to a running Firestore emulator.
type FirestoreEmulator struct {
	Host      string
	ProjectID string
	Client    *firestore.Client
}

// SetupFirestoreEmulator connects to the emulator named by FIRESTORE_EMULATOR_HOST
// under a fresh project ID. The test is skipped when no emulator is configured.
func SetupFirestoreEmulator(t *testing.T) (*FirestoreEmulator, context.Context) {
	t.Helper()

	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set; skipping Firestore emulator test")
	}

	ctx := context.Background()
	emulator := &FirestoreEmulator{
		Host:      host,
		ProjectID: generateUniqueProjectID(),
	}

	client, err := emulator.createClient(ctx)
	if err != nil {
		t.Fatalf("Failed to create Firestore client: %v", err)
	}
	emulator.Client = client
	t.Cleanup(func() { _ = client.Close() })

	if err := emulator.ClearData(ctx); err != nil {
		t.Logf("Warning: Failed to clear emulator data: %v", err)
	}

	return emulator, ctx
}

// generateUniqueProjectID keeps tests isolated from each other within one emulator.
func generateUniqueProjectID() string {
	timestamp := time.Now().Unix() % 1000000
	suffix := rand.New(rand.NewSource(time.Now().UnixNano())).Intn(1000)
	return fmt.Sprintf("test-%d-%d", timestamp, suffix)
}

func (e *FirestoreEmulator) createClient(ctx context.Context) (*firestore.Client, error) {
	conn, err := grpc.Dial(e.Host, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	client, err := firestore.NewClient(ctx, e.ProjectID, option.WithGRPCConn(conn), option.WithoutAuthentication())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// ClearData deletes every document of the emulator project.
func (e *FirestoreEmulator) ClearData(ctx context.Context) error {
	url := fmt.Sprintf("http://%s/emulator/v1/projects/%s/databases/(default)/documents", e.Host, e.ProjectID)

	timeoutCtx, cancel := context.WithTimeout(ctx, clearDataTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create clear data request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to clear emulator data: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// A fresh project may not exist yet.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d", ErrEmulatorClearFailed, resp.StatusCode)
	}

	return nil
}
