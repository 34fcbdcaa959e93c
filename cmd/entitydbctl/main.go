// Command entitydbctl is a small runnable worked example wiring
// store.Context, remotecache.Client, and an in-memory Stub together end to
// end: put, get, transactional get-or-insert, and a mapped query. It logs
// through logiface-slog to
// stdout as structured JSON, mirroring the teacher's own small cmd/
// examples.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joeycumines/go-entitydb/eventloop"
	"github.com/joeycumines/go-entitydb/remotecache"
	"github.com/joeycumines/go-entitydb/store"
	islog "github.com/joeycumines/logiface-slog"
)

type namespaceResolver struct{}

func (namespaceResolver) Current() string { return "" }

func main() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	logger := islog.L.New(islog.WithSlogHandler(handler)).Logger()

	loop := eventloop.New()
	stub := newMemStub()
	cache := remotecache.New(loop, stub, namespaceResolver{}, remotecache.WithLogger(logger))
	ctx := store.NewContext(loop, stub, stub, cache, store.WithLogger(logger))

	bg := context.Background()

	_, err := loop.SyncTasklet("entitydbctl.main", func(t *eventloop.Tasklet) (any, error) {
		key := store.NewKey("", "Greeting", "hello", nil)
		if _, err := t.Await(ctx.Put(bg, store.Entity{Key: key, Body: "hi there"}, store.PutCallOptions{})); err != nil {
			return nil, fmt.Errorf("put: %w", err)
		}

		got, err := t.Await(ctx.Get(bg, key, store.GetCallOptions{}))
		if err != nil {
			return nil, fmt.Errorf("get: %w", err)
		}
		fmt.Printf("get: %+v\n", got.(*store.Entity))

		inserted, err := t.Await(ctx.GetOrInsert(bg, store.NewKey("", "Greeting", "world", nil), key,
			func() store.Entity { return store.Entity{Body: "hello world"} },
			store.TransactionOptions{EntityGroup: key},
		))
		if err != nil {
			return nil, fmt.Errorf("getOrInsert: %w", err)
		}
		fmt.Printf("getOrInsert: %+v\n", inserted)

		var kinds []string
		_, err = t.Await(ctx.MapQuery(bg, "Greeting", store.QueryOptions{}, func(e store.Entity) (any, error) {
			kinds = append(kinds, fmt.Sprintf("%s=%v", e.Key.String(), e.Body))
			return nil, nil
		}))
		if err != nil {
			return nil, fmt.Errorf("mapQuery: %w", err)
		}
		fmt.Printf("mapQuery: %v\n", kinds)
		return nil, nil
	})
	if err != nil {
		logger.Err().Str("error", err.Error()).Log("entitydbctl failed")
		os.Exit(1)
	}
}
