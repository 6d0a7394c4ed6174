package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection   = "pos_idempotency_keys"
	defaultMaxAttempts  = 5
	defaultCleanupLimit = 100
)

// FirestoreOption customises a FirestoreStore.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding keys.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithMaxAttempts sets the transaction retry budget.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(store *FirestoreStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// FirestoreStore keeps keys in Firestore so replays survive restarts and span instances.
type FirestoreStore struct {
	client      *firestore.Client
	collection  string
	maxAttempts int
}

func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:      client,
		collection:  defaultCollection,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *FirestoreStore) doc(key string) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(documentID(key))
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.doc(key)

	var result Reservation
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var existing keyDocument
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			record := existing.record()
			if !expired(record, now) {
				if record.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				if record.Status == StatusCompleted {
					result = Reservation{State: ReservationStateCompleted, Record: record}
				} else {
					result = Reservation{State: ReservationStatePending, Record: record}
				}
				return nil
			}
		}

		record := newPendingRecord(key, fingerprint, now, ttl)
		if err := tx.Set(ref, documentFrom(record)); err != nil {
			return err
		}
		result = Reservation{State: ReservationStateNew, Record: record}
		return nil
	}, firestore.MaxAttempts(s.maxAttempts))
	if err != nil {
		return Reservation{}, err
	}
	return result, nil
}

func (s *FirestoreStore) SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.doc(key)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		record := newPendingRecord(key, fingerprint, now, ttl)
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var existing keyDocument
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			if existing.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			record.CreatedAt = existing.CreatedAt
		case status.Code(err) != codes.NotFound:
			return err
		}

		record.Status = StatusCompleted
		record.ResponseStatus = resp.Status
		record.ResponseHeaders = storableHeaders(resp.Headers)
		record.ResponseBody = append([]byte(nil), resp.Body...)
		return tx.Set(ref, documentFrom(record))
	}, firestore.MaxAttempts(s.maxAttempts))
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	_, err := s.doc(key).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultCleanupLimit
	}
	docs, err := s.client.Collection(s.collection).
		Where("expires_at", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	bw := s.client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return 0, err
		}
	}
	bw.End()
	return len(docs), nil
}

type keyDocument struct {
	Key             string              `firestore:"key"`
	Fingerprint     string              `firestore:"fingerprint"`
	Status          string              `firestore:"status"`
	ResponseStatus  int                 `firestore:"response_status"`
	ResponseHeaders map[string][]string `firestore:"response_headers,omitempty"`
	ResponseBody    []byte              `firestore:"response_body,omitempty"`
	CreatedAt       time.Time           `firestore:"created_at"`
	UpdatedAt       time.Time           `firestore:"updated_at"`
	ExpiresAt       time.Time           `firestore:"expires_at"`
}

func documentFrom(r Record) keyDocument {
	return keyDocument{
		Key:             r.Key,
		Fingerprint:     r.Fingerprint,
		Status:          string(r.Status),
		ResponseStatus:  r.ResponseStatus,
		ResponseHeaders: r.ResponseHeaders,
		ResponseBody:    r.ResponseBody,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		ExpiresAt:       r.ExpiresAt,
	}
}

func (d keyDocument) record() Record {
	return Record{
		Key:             d.Key,
		Fingerprint:     d.Fingerprint,
		Status:          Status(d.Status),
		ResponseStatus:  d.ResponseStatus,
		ResponseHeaders: d.ResponseHeaders,
		ResponseBody:    d.ResponseBody,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		ExpiresAt:       d.ExpiresAt,
	}
}
