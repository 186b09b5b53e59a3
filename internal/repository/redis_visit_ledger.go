package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"shorturl-service/internal/model"

	"github.com/redis/go-redis/v9"
)

const (
	visitRecordPrefix = "visit:"
	visitTotalPrefix  = "visits:total:"
	visitOrderKey     = "visits:order"
)

// RedisVisitLedger 使用 Redis 保存访问统计
//
// 每个 (短链接, IP) 对应一个 hash；visits:order 有序集合记录创建顺序；
// visits:total:<短链接> 保存累计次数，和 hash 计数在同一个 MULTI 中更新。
type RedisVisitLedger struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisVisitLedger(client *redis.Client) *RedisVisitLedger {
	return &RedisVisitLedger{client: client, now: time.Now}
}

func recordKey(shortURL, ip string) string {
	return visitRecordPrefix + shortURL + "|" + ip
}

func (r *RedisVisitLedger) InsertZeroState(ctx context.Context, shortURL, longURL string) error {
	key := recordKey(shortURL, "")
	now := r.now()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "short_url", shortURL, "long_url", longURL, "ip", "")
		pipe.HSetNX(ctx, key, "visit_count", 0)
		pipe.ZAddNX(ctx, visitOrderKey, redis.Z{Score: float64(now.UnixNano()), Member: key})
		pipe.IncrBy(ctx, visitTotalPrefix+shortURL, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to insert zero state: %w", err)
	}
	return nil
}

// RemoveZeroState 删除初始统计行、排序成员和累计值
func (r *RedisVisitLedger) RemoveZeroState(ctx context.Context, shortURL string) error {
	key := recordKey(shortURL, "")
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key, visitTotalPrefix+shortURL)
		pipe.ZRem(ctx, visitOrderKey, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove zero state: %w", err)
	}
	return nil
}

func (r *RedisVisitLedger) TotalVisits(ctx context.Context, shortURL string) (int64, error) {
	total, err := r.client.Get(ctx, visitTotalPrefix+shortURL).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get total visits: %w", err)
	}
	return total, nil
}

// RecordVisit 计数、最后访问时间和累计值在一个事务内更新
func (r *RedisVisitLedger) RecordVisit(ctx context.Context, shortURL, longURL, ip string) error {
	key := recordKey(shortURL, ip)
	now := r.now()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "visit_count", 1)
		pipe.HSet(ctx, key,
			"short_url", shortURL,
			"long_url", longURL,
			"ip", ip,
			"last_visited", now.UTC().Format(time.RFC3339Nano),
		)
		pipe.ZAddNX(ctx, visitOrderKey, redis.Z{Score: float64(now.UnixNano()), Member: key})
		pipe.Incr(ctx, visitTotalPrefix+shortURL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

func (r *RedisVisitLedger) ListAll(ctx context.Context) ([]model.VisitRecord, error) {
	keys, err := r.client.ZRange(ctx, visitOrderKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list visit keys: %w", err)
	}

	records := make([]model.VisitRecord, 0, len(keys))
	if len(keys) == 0 {
		return records, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load visit records: %w", err)
	}

	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		record, err := parseVisitRecord(fields)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

func parseVisitRecord(fields map[string]string) (model.VisitRecord, error) {
	record := model.VisitRecord{
		ShortURL: fields["short_url"],
		LongURL:  fields["long_url"],
		IP:       fields["ip"],
	}
	if v := fields["visit_count"]; v != "" {
		count, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return record, fmt.Errorf("invalid visit_count %q: %w", v, err)
		}
		record.VisitCount = count
	}
	if v := fields["last_visited"]; v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return record, fmt.Errorf("invalid last_visited %q: %w", v, err)
		}
		record.LastVisited = &t
	}
	return record, nil
}

// Ping 检查 Redis 连接
func (r *RedisVisitLedger) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
