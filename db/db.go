package db

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sync"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"google.golang.org/api/option"
)

// HashString hashes a given string using SHA-256 and returns its hex
// representation. Record ids may contain '/', which Firestore document ids
// cannot.
func HashString(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

var ErrNotConfigured = errors.New("FIREBASE_CREDENTIALS not set")

// FirestoreClient is a singleton Firestore client instance.
var (
	client     *firestore.Client
	clientOnce sync.Once
	clientErr  error
)

// InitFirestore initializes and returns the Firestore client from the
// base64 encoded service account in FIREBASE_CREDENTIALS.
func InitFirestore(ctx context.Context) (*firestore.Client, error) {
	clientOnce.Do(func() {
		encodedCreds := os.Getenv("FIREBASE_CREDENTIALS")
		if encodedCreds == "" {
			clientErr = ErrNotConfigured
			return
		}
		creds, err := base64.StdEncoding.DecodeString(encodedCreds)
		if err != nil {
			clientErr = fmt.Errorf("decode Firestore credentials: %w", err)
			return
		}

		app, err := firebase.NewApp(ctx, nil, option.WithCredentialsJSON(creds))
		if err != nil {
			clientErr = fmt.Errorf("initialize Firebase app: %w", err)
			return
		}
		client, clientErr = app.Firestore(ctx)
		if clientErr != nil {
			clientErr = fmt.Errorf("get Firestore client: %w", clientErr)
		}
	})
	return client, clientErr
}

// CloseFirestore closes the Firestore client.
func CloseFirestore() {
	if client != nil {
		client.Close()
	}
}
