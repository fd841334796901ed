package advstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-peerview/internal/util/logger"
	"github.com/dep2p/go-peerview/pkg/interfaces"
	"github.com/dep2p/go-peerview/pkg/types"
)

var log = logger.Logger("discovery/advstore")

// 确保实现了接口
var _ interfaces.Discovery = (*Store)(nil)

var (
	// ErrClosed 存储已关闭
	ErrClosed = errors.New("advstore: closed")

	// ErrInvalidTTL TTL 必须为正
	ErrInvalidTTL = errors.New("advstore: ttl must be positive")
)

const keyPrefix = "adv/"

// record 存储的值
type record struct {
	Adv     *types.PeerAdvertisement `json:"adv"`
	Expires time.Time                `json:"expires"`
}

// Store 广告存储
type Store struct {
	db     *badger.DB
	cfg    Config
	clock  clock.Clock
	closed atomic.Bool

	gcCtx    context.Context
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
}

// Open 打开存储并启动值日志 GC
func Open(cfg Config, clk clock.Clock) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	db, err := badger.Open(buildOptions(cfg))
	if err != nil {
		return nil, fmt.Errorf("advstore: open: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		db:       db,
		cfg:      cfg,
		clock:    clk,
		gcCtx:    ctx,
		gcCancel: cancel,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.startGC()
	}
	return s, nil
}

func buildOptions(cfg Config) badger.Options {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	return opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{log})
}

// badgerLogger 将 badger.Logger 适配到 slog
type badgerLogger struct {
	l *slog.Logger
}

func (b *badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (b *badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

// ============================================================================
//                              interfaces.Discovery
// ============================================================================

// Publish 保存广告，ttl 到期后失效
func (s *Store) Publish(ctx context.Context, adv *types.PeerAdvertisement, ttl time.Duration) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := adv.Validate(); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrInvalidTTL
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	value, err := json.Marshal(record{Adv: adv, Expires: s.clock.Now().Add(ttl)})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(key(adv.PeerID), value).WithTTL(ttl))
	})
}

// Get 读取未过期的广告
func (s *Store) Get(ctx context.Context, id types.PeerID) (*types.PeerAdvertisement, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, interfaces.ErrAdvNotFound
	}
	if err != nil {
		return nil, err
	}
	if rec.Adv == nil || !rec.Expires.After(s.clock.Now()) {
		return nil, interfaces.ErrAdvNotFound
	}
	return rec.Adv, nil
}

// Resolve 返回广告中的端点地址
func (s *Store) Resolve(ctx context.Context, id types.PeerID) ([]types.EndpointAddress, error) {
	adv, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(adv.Endpoints) == 0 {
		return nil, fmt.Errorf("%w: %s has no endpoints", interfaces.ErrAdvNotFound, id.ShortString())
	}
	return adv.Endpoints, nil
}

// All 返回全部未过期的广告
func (s *Store) All(ctx context.Context) ([]*types.PeerAdvertisement, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	now := s.clock.Now()
	var out []*types.PeerAdvertisement
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec record
			if err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &rec) }); err != nil {
				log.Debug("跳过无法解析的广告", "key", string(it.Item().Key()), "err", err)
				continue
			}
			if rec.Adv != nil && rec.Expires.After(now) {
				out = append(out, rec.Adv)
			}
		}
		return nil
	})
	return out, err
}

// Close 关闭存储
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.gcCancel()
	s.gcWg.Wait()
	return s.db.Close()
}

// ============================================================================
//                              GC
// ============================================================================

func (s *Store) startGC() {
	s.gcWg.Add(1)
	go func() {
		defer s.gcWg.Done()
		ticker := s.clock.Ticker(s.cfg.GCInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.gcCtx.Done():
				return
			case <-ticker.C:
				s.runGC()
			}
		}
	}()
}

// runGC 反复回收直到没有可回收的文件
func (s *Store) runGC() {
	for !s.closed.Load() {
		if err := s.db.RunValueLogGC(s.cfg.GCDiscardRatio); err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) {
				log.Debug("值日志 GC 结束", "err", err)
			}
			return
		}
	}
}

func key(id types.PeerID) []byte {
	return []byte(keyPrefix + string(id))
}
