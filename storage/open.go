package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"
)

// Store types accepted by Open.
const (
	TypeMemory = "memory"
	TypeBadger = "badger"
	TypeNATS   = "nats"

	// TypeNative is accepted as an alias for TypeBadger.
	TypeNative = "native"
)

// Options selects and configures a store backend.
type Options struct {
	Type   string
	Path   string
	Bucket string
	Logger *slog.Logger
}

// Open creates the configured store. js is only used by the nats backend.
func Open(ctx context.Context, opts Options, js jetstream.JetStream) (Store, error) {
	switch opts.Type {
	case TypeMemory, "":
		return NewMemoryStore(), nil

	case TypeBadger, TypeNative:
		cfg := DefaultBadgerConfig(opts.Path)
		cfg.Logger = opts.Logger
		return OpenBadger(cfg)

	case TypeNATS:
		if js == nil {
			return nil, errors.New("nats store requires a JetStream connection")
		}
		bucket := opts.Bucket
		if bucket == "" {
			bucket = BucketInferred
		}
		return NewKVStore(ctx, js, bucket)

	default:
		return nil, fmt.Errorf("unknown store type %q (valid: memory, badger, nats)", opts.Type)
	}
}
