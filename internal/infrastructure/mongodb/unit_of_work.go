package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
)

// UnitOfWork runs a function inside a MongoDB multi-document transaction.
// Repositories called with the session context join the same transaction.
type UnitOfWork struct {
	client *mongo.Client
}

// NewUnitOfWork creates a new UnitOfWork
func NewUnitOfWork(client *mongo.Client) *UnitOfWork {
	return &UnitOfWork{client: client}
}

// WithinTransaction starts a session and executes fn inside a transaction.
// The error from fn aborts the transaction and is returned unwrapped so
// callers can match domain sentinels with errors.Is.
func (u *UnitOfWork) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	session, err := u.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		return nil, fn(sessCtx)
	})
	return err
}
