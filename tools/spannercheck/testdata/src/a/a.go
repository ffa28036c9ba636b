package a

import (
	"context"

	"cloud.google.com/go/spanner"
)

type scope struct{}

func (scope) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type repo struct {
	client *spanner.Client
}

func (r *repo) save(ctx context.Context, s scope) error {
	return s.Execute(ctx, func(ctx context.Context) error {
		return r.client.Apply(ctx, nil) // want `spanner.Client.Apply inside a transaction scope runs outside the transaction`
	})
}

func (r *repo) archive(ctx context.Context) error {
	return r.client.Apply(ctx, nil)
}
