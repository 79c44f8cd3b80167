package database

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
)

// ConnectFirestore creates a Firestore client for the given project.
// Credentials come from the environment (ADC or FIRESTORE_EMULATOR_HOST).
func ConnectFirestore(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}
	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}
	return client, nil
}
