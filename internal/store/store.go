package store

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

import (
	cow "github.com/nanjiek/pixiu-cow"
	"github.com/nanjiek/pixiu-cow/internal/config"
	"github.com/nanjiek/pixiu-cow/internal/repo"
)

// FlagSet is the immutable payload published through the clone-on-write
// container: the flag map plus a prefix index over its keys.
type FlagSet struct {
	Flags map[string]config.Flag
	Index *KeyIndex
}

// cloneFlagSet duplicates the flag map so a mutator can edit it freely.
// The index is shared as-is: it is immutable and mutators that change
// the map rebuild it before returning.
func cloneFlagSet(s FlagSet) FlagSet {
	flags := make(map[string]config.Flag, len(s.Flags))
	for k, v := range s.Flags {
		flags[k] = v
	}
	return FlagSet{Flags: flags, Index: s.Index}
}

// Store keeps the live flag set in a cow.Container and mirrors every
// change to Redis. Lookups are lock-free reads of the current snapshot;
// mutations serialize through the container's edit protocol.
type Store struct {
	cfg   *config.Config
	rdb   repo.Repo
	flags *cow.Container[FlagSet]
	log   *slog.Logger
}

func NewStore(cfg *config.Config, rdb repo.Repo) *Store {
	initial := FlagSet{
		Flags: make(map[string]config.Flag),
		Index: BuildKeyIndex(map[string]config.Flag{}),
	}
	return &Store{
		cfg:   cfg,
		rdb:   rdb,
		flags: cow.New(initial, cloneFlagSet),
		log:   slog.Default(),
	}
}

// Snapshot returns the current immutable flag set. The snapshot stays
// coherent for as long as the caller holds it, no matter how many
// updates land meanwhile.
func (s *Store) Snapshot() *cow.Snapshot[FlagSet] {
	return s.flags.Read()
}

// Generation reports the number of edits applied so far.
func (s *Store) Generation() uint64 {
	return s.flags.Read().Generation()
}

func (s *Store) Get(key string) (config.Flag, bool) {
	set := s.flags.Read().Value()
	f, ok := set.Flags[key]
	return f, ok
}

// WithPrefix returns all flags whose key starts with prefix, in key
// order, resolved against one consistent snapshot.
func (s *Store) WithPrefix(prefix string) []config.Flag {
	set := s.flags.Read().Value()
	keys := set.Index.WithPrefix(prefix)
	out := make([]config.Flag, 0, len(keys))
	for _, k := range keys {
		if f, ok := set.Flags[k]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Upsert persists a flag and publishes it into the live set. A write
// that loses the last-writer-wins race returns repo.ErrStaleWrite and
// leaves the live set untouched.
func (s *Store) Upsert(ctx context.Context, f config.Flag) error {
	if f.Key == "" {
		return errors.New("store: flag key required")
	}
	if f.UpdatedAtMs == 0 {
		f.UpdatedAtMs = time.Now().UnixMilli()
	}

	if s.rdb != nil {
		if err := s.rdb.SaveFlag(ctx, f); err != nil {
			return err
		}
	}

	err := s.flags.Edit(func(set *FlagSet) error {
		set.Flags[f.Key] = f
		set.Index = BuildKeyIndex(set.Flags)
		return nil
	})
	if err != nil {
		return err
	}

	if s.rdb != nil {
		return s.rdb.PublishUpdate(ctx, f.Key)
	}
	return nil
}

// Delete removes a flag from storage and the live set.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("store: flag key required")
	}

	if s.rdb != nil {
		if err := s.rdb.DeleteFlag(ctx, key); err != nil {
			return err
		}
	}

	err := s.flags.Edit(func(set *FlagSet) error {
		if _, ok := set.Flags[key]; !ok {
			return nil
		}
		delete(set.Flags, key)
		set.Index = BuildKeyIndex(set.Flags)
		return nil
	})
	if err != nil {
		return err
	}

	if s.rdb != nil {
		return s.rdb.PublishUpdate(ctx, key)
	}
	return nil
}

// ReplaceAll swaps in an entirely new flag set.
func (s *Store) ReplaceAll(flags map[string]config.Flag) {
	_ = s.flags.Edit(func(set *FlagSet) error {
		next := make(map[string]config.Flag, len(flags))
		for k, v := range flags {
			next[k] = v
		}
		set.Flags = next
		set.Index = BuildKeyIndex(next)
		return nil
	})
	s.log.Info("reloaded flags", "count", len(flags))
}

// Bootstrap seeds configured flags into Redis (existing newer copies
// win) and loads the full set into the live snapshot.
func (s *Store) Bootstrap(ctx context.Context) error {
	if s.rdb == nil {
		s.ReplaceAll(BuildFlagMap(s.cfg.BootstrapFlags))
		return nil
	}

	for _, f := range s.cfg.BootstrapFlags {
		if f.Key == "" {
			continue
		}
		if err := s.rdb.SaveFlag(ctx, f); err != nil && !errors.Is(err, repo.ErrStaleWrite) {
			return err
		}
	}
	return s.ReloadAll(ctx)
}

// ReloadAll re-reads every stored flag and replaces the live set.
func (s *Store) ReloadAll(ctx context.Context) error {
	flags, err := s.rdb.LoadAll(ctx)
	if err != nil {
		return err
	}
	s.ReplaceAll(flags)
	return nil
}

// StartWatcher follows the Redis update channel and reloads on every
// notification, with a periodic full reload as a safety net. Blocks
// until ctx is done.
func (s *Store) StartWatcher(ctx context.Context) {
	updates, stop := s.rdb.SubscribeUpdates(ctx)
	defer func() { _ = stop() }()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-updates:
			if !ok {
				return
			}
			if err := s.ReloadAll(ctx); err != nil {
				s.log.Warn("reload after update failed", "error", err)
			}
		case <-time.After(60 * time.Second):
			if err := s.ReloadAll(ctx); err != nil {
				s.log.Warn("periodic reload failed", "error", err)
			}
		}
	}
}

// BuildFlagMap normalizes a flag slice into a map keyed by flag key.
func BuildFlagMap(flags []config.Flag) map[string]config.Flag {
	res := make(map[string]config.Flag, len(flags))
	for _, f := range flags {
		if f.Key == "" {
			continue
		}
		res[f.Key] = f
	}
	return res
}
