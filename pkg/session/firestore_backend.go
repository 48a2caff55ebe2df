package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFirestoreCollection = "pixelctx_sessions"
	callsSubcollection         = "calls"
)

// FirestoreConfig configures the Firestore backend.
type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
	// Collection is the root collection holding one document per session.
	Collection string `yaml:"collection"`
}

// FirestoreBackend stores each session as a document under a root
// collection, with one document per call in a "calls" subcollection.
type FirestoreBackend struct {
	client *firestore.Client
	root   *firestore.CollectionRef
	mu     sync.RWMutex
	closed bool
}

type firestoreSession struct {
	Count     int       `firestore:"count"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

type firestoreCall struct {
	Seq   int       `firestore:"seq"`
	Stats CallStats `firestore:"stats"`
}

// NewFirestoreBackend creates a Firestore client. FIRESTORE_EMULATOR_HOST is
// honored by the client library.
func NewFirestoreBackend(ctx context.Context, cfg FirestoreConfig) (*FirestoreBackend, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = defaultFirestoreCollection
	}
	return &FirestoreBackend{client: client, root: client.Collection(collection)}, nil
}

func (b *FirestoreBackend) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

func callDocID(seq int) string {
	return fmt.Sprintf("%08d", seq)
}

// Append writes the next call document and bumps the session counter in
// one transaction.
func (b *FirestoreBackend) Append(ctx context.Context, sessionID string, stats CallStats) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	sessRef := b.root.Doc(sessionID)
	err := b.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var sess firestoreSession
		snap, err := tx.Get(sessRef)
		switch {
		case err == nil:
			if err := snap.DataTo(&sess); err != nil {
				return err
			}
		case status.Code(err) == codes.NotFound:
		default:
			return err
		}

		callRef := sessRef.Collection(callsSubcollection).Doc(callDocID(sess.Count))
		if err := tx.Set(callRef, firestoreCall{Seq: sess.Count, Stats: stats}); err != nil {
			return err
		}
		sess.Count++
		sess.UpdatedAt = time.Now().UTC()
		return tx.Set(sessRef, sess)
	})
	if err != nil {
		return fmt.Errorf("append stats: %w", err)
	}
	return nil
}

// Load reads the calls subcollection ordered by sequence.
func (b *FirestoreBackend) Load(ctx context.Context, sessionID string) ([]CallStats, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if err := validateSessionID(sessionID); err != nil {
		return nil, err
	}

	iter := b.root.Doc(sessionID).Collection(callsSubcollection).
		OrderBy("seq", firestore.Asc).Documents(ctx)
	defer iter.Stop()

	calls := []CallStats{}
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("load stats: %w", err)
		}
		var c firestoreCall
		if err := doc.DataTo(&c); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}
		calls = append(calls, c.Stats)
	}
	return calls, nil
}

// Replace deletes the existing calls and writes the new log.
func (b *FirestoreBackend) Replace(ctx context.Context, sessionID string, calls []CallStats) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	if err := b.deleteCalls(ctx, sessionID); err != nil {
		return err
	}

	sessRef := b.root.Doc(sessionID)
	bw := b.client.BulkWriter(ctx)
	for i, c := range calls {
		if _, err := bw.Set(sessRef.Collection(callsSubcollection).Doc(callDocID(i)), firestoreCall{Seq: i, Stats: c}); err != nil {
			bw.End()
			return fmt.Errorf("queue stats write: %w", err)
		}
	}
	if _, err := bw.Set(sessRef, firestoreSession{Count: len(calls), UpdatedAt: time.Now().UTC()}); err != nil {
		bw.End()
		return fmt.Errorf("queue session write: %w", err)
	}
	bw.End()
	return nil
}

// Delete removes the session document and its calls.
func (b *FirestoreBackend) Delete(ctx context.Context, sessionID string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	if err := validateSessionID(sessionID); err != nil {
		return err
	}

	if err := b.deleteCalls(ctx, sessionID); err != nil {
		return err
	}
	if _, err := b.root.Doc(sessionID).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (b *FirestoreBackend) deleteCalls(ctx context.Context, sessionID string) error {
	bw := b.client.BulkWriter(ctx)
	iter := b.root.Doc(sessionID).Collection(callsSubcollection).Documents(ctx)
	defer iter.Stop()

	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return fmt.Errorf("failed to iterate documents: %w", err)
		}
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return fmt.Errorf("failed to queue delete: %w", err)
		}
	}
	bw.End()
	return nil
}

// Sessions lists session document ids, sorted.
func (b *FirestoreBackend) Sessions(ctx context.Context) ([]string, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	iter := b.root.Documents(ctx)
	defer iter.Stop()

	var ids []string
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		ids = append(ids, doc.Ref.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close closes the Firestore client.
func (b *FirestoreBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.client.Close()
}
