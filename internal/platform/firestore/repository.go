package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot plus its storage timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// QueryBuilder narrows a collection query.
type QueryBuilder func(query firestore.Query) firestore.Query

// Collection gives typed access to one collection. T must decode with DataTo.
type Collection[T any] struct {
	provider *Provider
	name     string
}

func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Name returns the collection path.
func (c *Collection[T]) Name() string { return c.name }

// Create writes a new document and fails with a conflict if id already exists.
func (c *Collection[T]) Create(ctx context.Context, id string, value T) (time.Time, error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	res, err := ref.Create(ctx, value)
	if err != nil {
		return time.Time{}, WrapError(c.op("create"), err)
	}
	return res.UpdateTime, nil
}

// Set upserts a document.
func (c *Collection[T]) Set(ctx context.Context, id string, value T) (time.Time, error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return time.Time{}, err
	}
	res, err := ref.Set(ctx, value)
	if err != nil {
		return time.Time{}, WrapError(c.op("set"), err)
	}
	return res.UpdateTime, nil
}

func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return c.Decode(snap)
}

// Query runs build against the collection and decodes every result.
func (c *Collection[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		doc, err := c.Decode(snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

// Decode converts a snapshot, typically one read inside a transaction.
func (c *Collection[T]) Decode(snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("%s: decode %s: %w", c.name, snap.Ref.ID, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime}, nil
}

// Ref returns the document reference for id, for use in transactions.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("ref"), errors.New("firestore: document id is required"))
	}
	coll, err := c.ref(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (c *Collection[T]) ref(ctx context.Context) (*firestore.CollectionRef, error) {
	if c.provider == nil {
		return nil, WrapError(c.op("collection"), ErrProviderClosed)
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, WrapError(c.op("collection"), err)
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) op(action string) string {
	return c.name + "." + action
}
