package service

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strings"
	"time"

	"shorturl-service/internal/config"
	"shorturl-service/internal/metrics"
	"shorturl-service/internal/model"
	"shorturl-service/internal/repository"

	"go.uber.org/zap"
)

const (
	// maxCreateAttempts 生成的短码插入冲突时的最大重试次数
	maxCreateAttempts = 3
	maxAliasLength    = 64
)

var aliasRe = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// reservedAliases 与 /url 下的固定路由同名，无法用于跳转
var reservedAliases = map[string]struct{}{
	"stats": {},
}

// CodeSource 提供新的随机短码
type CodeSource interface {
	GetCode(ctx context.Context) (string, error)
}

// ShortURLService 组合短链接存储和访问统计
type ShortURLService struct {
	links  repository.LinkStore
	ledger repository.VisitLedger
	tx     repository.Transactor
	codes  CodeSource
	urls   config.URL
	logger *zap.SugaredLogger
	now    func() time.Time
}

func NewShortURLService(
	links repository.LinkStore,
	ledger repository.VisitLedger,
	tx repository.Transactor,
	codes CodeSource,
	cfg *config.Config,
	logger *zap.SugaredLogger,
) *ShortURLService {
	return &ShortURLService{
		links:  links,
		ledger: ledger,
		tx:     tx,
		codes:  codes,
		urls:   cfg.URL,
		logger: logger.Named("shorturl_service"),
		now:    time.Now,
	}
}

// CreateShortLink 同一个长链接总是返回第一次生成的短链接
//
// 查询和插入不是原子的，并发创建同一个新长链接可能得到两个短链接。
func (s *ShortURLService) CreateShortLink(ctx context.Context, longURL string) (string, error) {
	longURL = strings.TrimSpace(longURL)
	if !isValidURL(longURL) {
		return "", validationError(MsgInvalidURL)
	}

	existing, err := s.links.FindByLongURL(ctx, longURL)
	if err != nil {
		return "", storeError(err)
	}
	if existing != nil {
		return existing.ShortURL, nil
	}

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		code, err := s.codes.GetCode(ctx)
		if err != nil {
			return "", storeError(err)
		}

		link := s.newLink(code, longURL)
		err = s.insertWithZeroState(ctx, link)
		if err == nil {
			metrics.RecordCreated("generated")
			s.logger.Infow("短链接创建成功", "short_url", link.ShortURL, "long_url", longURL)
			return link.ShortURL, nil
		}
		if !errors.Is(err, repository.ErrDuplicateShortURL) {
			return "", storeError(err)
		}
		s.logger.Warnw("短码冲突，重新生成", "code", code, "attempt", attempt)
	}
	return "", storeError(errors.New("short code collisions exhausted retries"))
}

// ResolveAndRecordVisit 先检查访问上限再记录本次访问，达到上限的那次访问仍然放行
//
// 检查和记录之间没有锁，并发请求在边界上可能同时被放行。
func (s *ShortURLService) ResolveAndRecordVisit(ctx context.Context, code, ip string) (string, error) {
	shortURL := s.urls.ShortURL(code)

	link, err := s.links.FindByShortURL(ctx, shortURL)
	if err != nil {
		return "", storeError(err)
	}
	if link == nil {
		return "", notFoundError(MsgURLNotExist)
	}
	if link.IsDeleted {
		return "", notFoundError(MsgURLDeleted)
	}

	total, err := s.ledger.TotalVisits(ctx, shortURL)
	if err != nil {
		return "", storeError(err)
	}
	if link.LimitReached(total) {
		return "", newError(ErrForbidden, MsgLimitReached, nil)
	}

	if err := s.ledger.RecordVisit(ctx, shortURL, link.LongURL, ip); err != nil {
		return "", storeError(err)
	}
	return link.LongURL, nil
}

// GetAllStatistics 返回全部访问统计，已删除短链接的统计同样保留
func (s *ShortURLService) GetAllStatistics(ctx context.Context) ([]model.VisitRecord, error) {
	records, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return records, nil
}

// AssignAlias 为已有短链接创建别名，别名指向原短链接本身
func (s *ShortURLService) AssignAlias(ctx context.Context, targetShortURL, alias string) (string, error) {
	alias = strings.TrimSpace(alias)
	if len(alias) > maxAliasLength || !aliasRe.MatchString(alias) {
		return "", validationError(MsgInvalidAlias)
	}
	if _, ok := reservedAliases[strings.ToLower(alias)]; ok {
		return "", validationError(MsgReservedAlias)
	}

	target, err := s.links.FindByShortURL(ctx, targetShortURL)
	if err != nil {
		return "", storeError(err)
	}
	if target == nil {
		return "", notFoundError(MsgShortURLNotExist)
	}
	if target.IsDeleted {
		return "", notFoundError(MsgURLDeleted)
	}

	aliasURL := s.urls.ShortURL(alias)
	taken, err := s.links.FindByShortURL(ctx, aliasURL)
	if err != nil {
		return "", storeError(err)
	}
	if taken != nil {
		return "", newError(ErrConflict, MsgAliasExists, nil)
	}

	link := s.newLink(alias, targetShortURL)
	if err := s.insertWithZeroState(ctx, link); err != nil {
		if errors.Is(err, repository.ErrDuplicateShortURL) {
			return "", newError(ErrConflict, MsgAliasExists, err)
		}
		return "", storeError(err)
	}
	metrics.RecordCreated("alias")
	s.logger.Infow("别名创建成功", "alias_url", aliasURL, "target", targetShortURL)
	return aliasURL, nil
}

// SetRequestLimit 设置访问上限，0 表示不限制
func (s *ShortURLService) SetRequestLimit(ctx context.Context, shortURL string, limit int64) (string, error) {
	if limit < 0 {
		return "", validationError(MsgInvalidLimit)
	}

	link, err := s.links.FindByShortURL(ctx, shortURL)
	if err != nil {
		return "", storeError(err)
	}
	if link == nil {
		return "", notFoundError(MsgShortURLNotExist)
	}
	if link.IsDeleted {
		return "", notFoundError(MsgURLDeleted)
	}

	updated, err := s.links.SetRequestLimit(ctx, shortURL, limit)
	if err != nil {
		return "", storeError(err)
	}
	if !updated {
		// 查询之后被并发删除
		return "", notFoundError(MsgURLDeleted)
	}
	s.logger.Infow("访问上限已更新", "short_url", shortURL, "request_limit", limit)
	return MsgRequestLimitSet, nil
}

// SoftDeleteURL 软删除短链接，重复删除返回 ErrNotFound
func (s *ShortURLService) SoftDeleteURL(ctx context.Context, shortURL string) (string, error) {
	link, err := s.links.FindByShortURL(ctx, shortURL)
	if err != nil {
		return "", storeError(err)
	}
	if link == nil {
		return "", notFoundError(MsgShortURLNotExist)
	}
	if link.IsDeleted {
		return "", notFoundError(MsgURLAlreadyDeleted)
	}

	deleted, err := s.links.SoftDelete(ctx, shortURL)
	if err != nil {
		return "", storeError(err)
	}
	if !deleted {
		return "", notFoundError(MsgURLAlreadyDeleted)
	}
	s.logger.Infow("短链接已删除", "short_url", shortURL)
	return MsgShortURLDeleted, nil
}

// IsShortURL 判断是否为本服务生成的短链接
func (s *ShortURLService) IsShortURL(raw string) bool {
	return strings.HasPrefix(raw, s.urls.Domain+"/")
}

// Health 检查存储连接
func (s *ShortURLService) Health(ctx context.Context) error {
	if err := s.links.Ping(ctx); err != nil {
		return err
	}
	if p, ok := s.ledger.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

func (s *ShortURLService) newLink(code, longURL string) *model.Link {
	return &model.Link{
		ShortCode:    code,
		ShortURL:     s.urls.ShortURL(code),
		LongURL:      longURL,
		LongURLHash:  repository.HashURL(longURL),
		RequestLimit: 0,
		CreatedOn:    s.now(),
		IsDeleted:    false,
	}
}

// insertWithZeroState 短链接和初始统计行一起写入，任一失败则整体失败
// 统计存储不在数据库事务内时（Redis），提交失败后删除已写入的初始统计
func (s *ShortURLService) insertWithZeroState(ctx context.Context, link *model.Link) error {
	zeroStateWritten := false
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.links.Insert(ctx, link); err != nil {
			return err
		}
		if err := s.ledger.InsertZeroState(ctx, link.ShortURL, link.LongURL); err != nil {
			return err
		}
		zeroStateWritten = true
		return nil
	})
	if err != nil && zeroStateWritten {
		if remover, ok := s.ledger.(repository.ZeroStateRemover); ok {
			if rmErr := remover.RemoveZeroState(ctx, link.ShortURL); rmErr != nil {
				s.logger.Errorw("清理初始统计失败", "short_url", link.ShortURL, "error", rmErr)
			}
		}
	}
	return err
}

func isValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	parsed, err := url.ParseRequestURI(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	return true
}
