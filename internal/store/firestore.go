package store

import (
	"context"
	"fmt"
	"sort"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/go-authgate/qbgate/internal/models"
)

// FirestoreStore keeps the token document at a fixed Firestore path,
// e.g. "mas-parameters/quickbooksAPI".
type FirestoreStore struct {
	doc *firestore.DocumentRef
}

var _ TokenStore = (*FirestoreStore)(nil)

// NewFirestoreClient connects to Firestore. An empty credentialsFile uses
// application default credentials (or FIRESTORE_EMULATOR_HOST).
func NewFirestoreClient(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	return client, nil
}

func NewFirestoreStore(client *firestore.Client, path string) (*FirestoreStore, error) {
	doc := client.Doc(path)
	if doc == nil {
		return nil, fmt.Errorf("invalid firestore document path %q", path)
	}
	return &FirestoreStore{doc: doc}, nil
}

func (s *FirestoreStore) Get(ctx context.Context) (*models.TokenRecord, error) {
	snap, err := s.doc.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec models.TokenRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("decode token document: %w", err)
	}
	return &rec, nil
}

func (s *FirestoreStore) Set(ctx context.Context, rec *models.TokenRecord, merge bool) error {
	var err error
	if merge {
		_, err = s.doc.Set(ctx, rec.Fields(), firestore.MergeAll)
	} else {
		_, err = s.doc.Set(ctx, rec.Fields())
	}
	return err
}

func (s *FirestoreStore) Update(ctx context.Context, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	updates := make([]firestore.Update, 0, len(keys))
	for _, k := range keys {
		updates = append(updates, firestore.Update{Path: k, Value: fields[k]})
	}

	_, err := s.doc.Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return err
}

func (s *FirestoreStore) Health(ctx context.Context) error {
	_, err := s.doc.Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}
