package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"shorturl-service/internal/config"
	"shorturl-service/internal/model"
	"shorturl-service/internal/repository"
	"shorturl-service/pkg/database"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testDomain = "http://localhost:3000/url"

// sequenceCodes 按顺序返回预设短码，用完后生成 codeN
type sequenceCodes struct {
	mu    sync.Mutex
	codes []string
	n     int
}

func (s *sequenceCodes) GetCode(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	if len(s.codes) > 0 {
		code := s.codes[0]
		s.codes = s.codes[1:]
		return code, nil
	}
	return fmt.Sprintf("code%06d", s.n), nil
}

// failingLedger 初始统计写入总是失败
type failingLedger struct {
	repository.VisitLedger
}

func (failingLedger) InsertZeroState(ctx context.Context, shortURL, longURL string) error {
	return errors.New("ledger unavailable")
}

// rollbackTransactor 回调成功后仍然回滚，模拟提交失败
type rollbackTransactor struct {
	inner repository.Transactor
}

var errCommit = errors.New("commit failed")

func (r rollbackTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.inner.WithTx(ctx, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return err
		}
		return errCommit
	})
}

type fixture struct {
	svc    *ShortURLService
	links  *repository.GormLinkStore
	ledger repository.VisitLedger
	codes  *sequenceCodes
	db     *gorm.DB
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	db := newTestDB(t)
	f := &fixture{
		links:  repository.NewLinkStore(db),
		ledger: repository.NewVisitLedger(db),
		codes:  &sequenceCodes{codes: codes},
		db:     db,
	}
	cfg := &config.Config{URL: config.URL{Domain: testDomain, CodeLength: 10}}
	f.svc = NewShortURLService(f.links, f.ledger, repository.NewGormTransactor(db), f.codes, cfg, zap.NewNop().Sugar())
	return f
}

func TestCreateShortLink(t *testing.T) {
	f := newFixture(t, "abc123")
	ctx := context.Background()

	shortURL, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, testDomain+"/abc123", shortURL)

	link, err := f.links.FindByShortURL(ctx, shortURL)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "abc123", link.ShortCode)
	assert.Equal(t, int64(0), link.RequestLimit)
	assert.False(t, link.IsDeleted)

	stats, err := f.svc.GetAllStatistics(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, shortURL, stats[0].ShortURL)
	assert.Equal(t, "", stats[0].IP)
	assert.Equal(t, int64(0), stats[0].VisitCount)
}

func TestCreateShortLink_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)
	second, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := f.svc.CreateShortLink(ctx, "https://example.com/b")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestCreateShortLink_InvalidURL(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{"", "not a url", "example.com/path", "/relative"} {
		_, err := f.svc.CreateShortLink(context.Background(), raw)
		assert.ErrorIs(t, err, ErrValidation, raw)
		assert.Equal(t, MsgInvalidURL, Message(err))
	}
}

func TestCreateShortLink_RetriesOnCollision(t *testing.T) {
	f := newFixture(t, "taken", "taken", "fresh")
	ctx := context.Background()

	_, err := f.svc.CreateShortLink(ctx, "https://example.com/first")
	require.NoError(t, err)

	shortURL, err := f.svc.CreateShortLink(ctx, "https://example.com/second")
	require.NoError(t, err)
	assert.Equal(t, testDomain+"/fresh", shortURL)
}

func TestCreateShortLink_CollisionsExhausted(t *testing.T) {
	f := newFixture(t, "taken", "taken", "taken", "taken")
	ctx := context.Background()

	_, err := f.svc.CreateShortLink(ctx, "https://example.com/first")
	require.NoError(t, err)

	_, err = f.svc.CreateShortLink(ctx, "https://example.com/second")
	assert.ErrorIs(t, err, ErrStore)
}

func TestCreateShortLink_LedgerFailureRollsBack(t *testing.T) {
	f := newFixture(t, "abc123")
	cfg := &config.Config{URL: config.URL{Domain: testDomain}}
	svc := NewShortURLService(f.links, failingLedger{f.ledger}, repository.NewGormTransactor(f.db), f.codes, cfg, zap.NewNop().Sugar())
	ctx := context.Background()

	_, err := svc.CreateShortLink(ctx, "https://example.com/a")
	assert.ErrorIs(t, err, ErrStore)
	assert.Equal(t, MsgStoreFailure, Message(err))

	link, err := f.links.FindByShortURL(ctx, testDomain+"/abc123")
	require.NoError(t, err)
	assert.Nil(t, link, "link insert must roll back with the zero-state row")
}

func TestCreateShortLink_CommitFailureCleansRedisLedger(t *testing.T) {
	f := newFixture(t, "abc123")
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ledger := repository.NewRedisVisitLedger(client)

	cfg := &config.Config{URL: config.URL{Domain: testDomain}}
	svc := NewShortURLService(f.links, ledger, rollbackTransactor{repository.NewGormTransactor(f.db)}, f.codes, cfg, zap.NewNop().Sugar())
	ctx := context.Background()

	_, err := svc.CreateShortLink(ctx, "https://example.com/a")
	assert.ErrorIs(t, err, ErrStore)
	assert.ErrorIs(t, err, errCommit)

	link, err := f.links.FindByShortURL(ctx, testDomain+"/abc123")
	require.NoError(t, err)
	assert.Nil(t, link)

	stats, err := ledger.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, stats, "no statistics for a link that was never stored")

	total, err := ledger.TotalVisits(ctx, testDomain+"/abc123")
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestResolveAndRecordVisit_Unlimited(t *testing.T) {
	f := newFixture(t, "free")
	ctx := context.Background()

	_, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		longURL, err := f.svc.ResolveAndRecordVisit(ctx, "free", "1.1.1.1")
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/a", longURL)
	}

	total, err := f.ledger.TotalVisits(ctx, testDomain+"/free")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
}

func TestResolveAndRecordVisit_LimitAllowsExactlyL(t *testing.T) {
	f := newFixture(t, "limited")
	ctx := context.Background()

	shortURL, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)
	_, err = f.svc.SetRequestLimit(ctx, shortURL, 3)
	require.NoError(t, err)

	ips := []string{"1.1.1.1", "2.2.2.2", "1.1.1.1"}
	for _, ip := range ips {
		_, err := f.svc.ResolveAndRecordVisit(ctx, "limited", ip)
		require.NoError(t, err)
	}

	_, err = f.svc.ResolveAndRecordVisit(ctx, "limited", "3.3.3.3")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Equal(t, MsgLimitReached, Message(err))

	// 被拒绝的访问不计数
	total, err := f.ledger.TotalVisits(ctx, shortURL)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestResolveAndRecordVisit_UnknownCode(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.ResolveAndRecordVisit(context.Background(), "missing", "1.1.1.1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, MsgURLNotExist, Message(err))
}

func TestAssignAlias(t *testing.T) {
	f := newFixture(t, "target")
	ctx := context.Background()

	target, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)

	aliasURL, err := f.svc.AssignAlias(ctx, target, "my-link")
	require.NoError(t, err)
	assert.Equal(t, testDomain+"/my-link", aliasURL)

	// 别名跳转到原短链接
	longURL, err := f.svc.ResolveAndRecordVisit(ctx, "my-link", "1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, target, longURL)

	_, err = f.svc.AssignAlias(ctx, target, "my-link")
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, MsgAliasExists, Message(err))

	// 别名不能与已有短码重名
	_, err = f.svc.AssignAlias(ctx, target, "target")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAssignAlias_InvalidAlias(t *testing.T) {
	f := newFixture(t, "target")
	ctx := context.Background()

	target, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)

	for _, alias := range []string{"", "has space", "slash/alias", "ünïcode"} {
		_, err := f.svc.AssignAlias(ctx, target, alias)
		assert.ErrorIs(t, err, ErrValidation, alias)
	}
}

func TestAssignAlias_ReservedName(t *testing.T) {
	f := newFixture(t, "target")
	ctx := context.Background()

	target, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)

	for _, alias := range []string{"stats", "STATS"} {
		_, err := f.svc.AssignAlias(ctx, target, alias)
		assert.ErrorIs(t, err, ErrValidation, alias)
		assert.Equal(t, MsgReservedAlias, Message(err))
	}

	link, err := f.links.FindByShortURL(ctx, testDomain+"/stats")
	require.NoError(t, err)
	assert.Nil(t, link)
}

func TestAssignAlias_UnknownOrDeletedTarget(t *testing.T) {
	f := newFixture(t, "target")
	ctx := context.Background()

	_, err := f.svc.AssignAlias(ctx, testDomain+"/missing", "alias1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, MsgShortURLNotExist, Message(err))

	target, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)
	_, err = f.svc.SoftDeleteURL(ctx, target)
	require.NoError(t, err)

	_, err = f.svc.AssignAlias(ctx, target, "alias2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, MsgURLDeleted, Message(err))
}

func TestSetRequestLimit(t *testing.T) {
	f := newFixture(t, "abc")
	ctx := context.Background()

	shortURL, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)

	msg, err := f.svc.SetRequestLimit(ctx, shortURL, 7)
	require.NoError(t, err)
	assert.Equal(t, MsgRequestLimitSet, msg)

	link, err := f.links.FindByShortURL(ctx, shortURL)
	require.NoError(t, err)
	assert.Equal(t, int64(7), link.RequestLimit)

	_, err = f.svc.SetRequestLimit(ctx, shortURL, -1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.SetRequestLimit(ctx, testDomain+"/missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, MsgShortURLNotExist, Message(err))
}

func TestSoftDeleteURL(t *testing.T) {
	f := newFixture(t, "abc")
	ctx := context.Background()

	_, err := f.svc.SoftDeleteURL(ctx, testDomain+"/missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, MsgShortURLNotExist, Message(err))

	shortURL, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)

	msg, err := f.svc.SoftDeleteURL(ctx, shortURL)
	require.NoError(t, err)
	assert.Equal(t, MsgShortURLDeleted, msg)

	_, err = f.svc.SoftDeleteURL(ctx, shortURL)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, MsgURLAlreadyDeleted, Message(err))

	// 删除后不会再生成新的短链接
	again, err := f.svc.CreateShortLink(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, shortURL, again)
}

// TestLifecycleScenario 创建、访问、限流、删除的完整流程
func TestLifecycleScenario(t *testing.T) {
	f := newFixture(t, "GmgaS1HTd2")
	ctx := context.Background()
	longURL := "https://example.com/"

	shortURL, err := f.svc.CreateShortLink(ctx, longURL)
	require.NoError(t, err)
	assert.Equal(t, testDomain+"/GmgaS1HTd2", shortURL)

	got, err := f.svc.ResolveAndRecordVisit(ctx, "GmgaS1HTd2", "1.1.1.1")
	require.NoError(t, err)
	assert.Equal(t, longURL, got)

	_, err = f.svc.SetRequestLimit(ctx, shortURL, 1)
	require.NoError(t, err)

	_, err = f.svc.ResolveAndRecordVisit(ctx, "GmgaS1HTd2", "1.1.1.1")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ResolveAndRecordVisit(ctx, "GmgaS1HTd2", "2.2.2.2")
	assert.ErrorIs(t, err, ErrForbidden)

	stats, err := f.svc.GetAllStatistics(ctx)
	require.NoError(t, err)
	assertStats(t, stats, shortURL, map[string]int64{"": 0, "1.1.1.1": 1})

	_, err = f.svc.SoftDeleteURL(ctx, shortURL)
	require.NoError(t, err)

	_, err = f.svc.ResolveAndRecordVisit(ctx, "GmgaS1HTd2", "1.1.1.1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, MsgURLDeleted, Message(err))

	_, err = f.svc.SetRequestLimit(ctx, shortURL, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, MsgURLDeleted, Message(err))

	// 删除后统计仍然保留
	stats, err = f.svc.GetAllStatistics(ctx)
	require.NoError(t, err)
	assertStats(t, stats, shortURL, map[string]int64{"": 0, "1.1.1.1": 1})
}

func assertStats(t *testing.T, stats []model.VisitRecord, shortURL string, want map[string]int64) {
	t.Helper()
	got := make(map[string]int64)
	for _, r := range stats {
		if r.ShortURL == shortURL {
			got[r.IP] = r.VisitCount
		}
	}
	assert.Equal(t, want, got)
}

func TestIsShortURL(t *testing.T) {
	f := newFixture(t)

	assert.True(t, f.svc.IsShortURL(testDomain+"/abc"))
	assert.False(t, f.svc.IsShortURL("https://example.com/abc"))
	assert.False(t, f.svc.IsShortURL(testDomain))
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.Health(context.Background()))
}
