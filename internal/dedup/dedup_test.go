package dedup

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"polywhales/internal/storage"
)

func newDurable(t *testing.T, path string) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}
	return store
}

func newTestStore(t *testing.T, durable storage.DedupStore, opts Options) *Store {
	t.Helper()
	s, err := New(opts, durable, zerolog.Nop())
	if err != nil {
		t.Fatalf("构造 dedup store 失败: %v", err)
	}
	return s
}

func TestRememberAndIsSeen(t *testing.T) {
	durable := newDurable(t, filepath.Join(t.TempDir(), "dedup.db"))
	defer durable.Close()

	s := newTestStore(t, durable, Options{CacheSize: 16})
	ctx := context.Background()

	if s.IsSeen(ctx, "k1") {
		t.Fatal("新 key 不应命中")
	}
	s.Remember("k1")
	if !s.IsSeen(ctx, "k1") {
		t.Fatal("Remember 后应立即命中缓存")
	}
	if s.PendingLen() != 1 {
		t.Fatalf("应有 1 个待刷新 key, 实际 %d", s.PendingLen())
	}
}

func TestFlushSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dedup.db")
	ctx := context.Background()

	durable := newDurable(t, path)
	s := newTestStore(t, durable, Options{CacheSize: 16})
	s.Remember("k1")
	s.Remember("k2")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("刷新失败: %v", err)
	}
	if s.PendingLen() != 0 {
		t.Fatal("刷新后待写队列应清空")
	}
	durable.Close()

	// 模拟重启: 全新缓存, 同一数据库文件
	durable2 := newDurable(t, path)
	defer durable2.Close()
	s2 := newTestStore(t, durable2, Options{CacheSize: 16})

	if !s2.IsSeen(ctx, "k1") || !s2.IsSeen(ctx, "k2") {
		t.Fatal("重启后持久化的 key 应仍然命中")
	}
}

func TestDurableHitPromotedToCache(t *testing.T) {
	durable := newDurable(t, filepath.Join(t.TempDir(), "dedup.db"))
	defer durable.Close()
	ctx := context.Background()

	if err := durable.InsertSeenBatch(ctx, []string{"k1"}, time.Now()); err != nil {
		t.Fatalf("预置 key 失败: %v", err)
	}

	s := newTestStore(t, durable, Options{CacheSize: 16})
	if s.CacheLen() != 0 {
		t.Fatal("初始缓存应为空")
	}
	if !s.IsSeen(ctx, "k1") {
		t.Fatal("持久层命中应返回 true")
	}
	if s.CacheLen() != 1 {
		t.Fatal("持久层命中应晋升到缓存")
	}
}

// failingDurable 模拟持久层故障。
type failingDurable struct{}

func (failingDurable) InsertSeenBatch(context.Context, []string, time.Time) error {
	return errors.New("disk on fire")
}

func (failingDurable) HasSeen(context.Context, string) (bool, error) {
	return false, errors.New("disk on fire")
}

func (failingDurable) DeleteSeenBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk on fire")
}

func TestLookupErrorTreatedAsUnseen(t *testing.T) {
	s := newTestStore(t, failingDurable{}, Options{CacheSize: 16})
	// 持久层出错时宁可重复告警也不能丢单
	if s.IsSeen(context.Background(), "k1") {
		t.Fatal("持久层错误应视为未见过")
	}
}

func TestFlushErrorClearsPendingKeepsCache(t *testing.T) {
	s := newTestStore(t, failingDurable{}, Options{CacheSize: 16})
	ctx := context.Background()

	s.Remember("k1")
	if err := s.Flush(ctx); err == nil {
		t.Fatal("持久层故障时 Flush 应报错")
	}
	if s.PendingLen() != 0 {
		t.Fatal("失败的批次不应无限堆积")
	}
	if !s.IsSeen(ctx, "k1") {
		t.Fatal("刷新失败后缓存仍应拦截进程内重复")
	}
}

func TestSweepRateLimited(t *testing.T) {
	durable := newDurable(t, filepath.Join(t.TempDir(), "dedup.db"))
	defer durable.Close()
	ctx := context.Background()

	now := time.Now()
	if err := durable.InsertSeenBatch(ctx, []string{"old"}, now.Add(-80*time.Hour)); err != nil {
		t.Fatalf("预置失败: %v", err)
	}

	s := newTestStore(t, durable, Options{
		CacheSize:     16,
		RetentionTTL:  72 * time.Hour,
		SweepInterval: time.Hour,
	})

	s.Sweep(ctx, now)
	if seen, _ := durable.HasSeen(ctx, "old"); seen {
		t.Fatal("首次 Sweep 应清理过期 key")
	}

	if err := durable.InsertSeenBatch(ctx, []string{"old2"}, now.Add(-80*time.Hour)); err != nil {
		t.Fatalf("预置失败: %v", err)
	}
	// 间隔不足一小时, 第二次 Sweep 应被限速跳过
	s.Sweep(ctx, now.Add(30*time.Minute))
	if seen, _ := durable.HasSeen(ctx, "old2"); !seen {
		t.Fatal("限速窗口内不应再次清理")
	}

	s.Sweep(ctx, now.Add(2*time.Hour))
	if seen, _ := durable.HasSeen(ctx, "old2"); seen {
		t.Fatal("限速窗口过后应恢复清理")
	}
}

func TestCacheEvictionFallsBackToDurable(t *testing.T) {
	durable := newDurable(t, filepath.Join(t.TempDir(), "dedup.db"))
	defer durable.Close()
	ctx := context.Background()

	s := newTestStore(t, durable, Options{CacheSize: 2})
	s.Remember("k1")
	if err := s.Flush(ctx); err != nil {
		t.Fatalf("刷新失败: %v", err)
	}

	// 挤掉 k1
	s.Remember("k2")
	s.Remember("k3")

	if !s.IsSeen(ctx, "k1") {
		t.Fatal("被缓存淘汰的 key 应由持久层兜底")
	}
}
