package shortcode

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// Charset URL 安全字符集
	Charset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"
	// DefaultCodeLength 默认短码长度
	DefaultCodeLength = 10
	// ChannelBufferSize 是短码通道的缓冲区大小
	ChannelBufferSize = 1000
	// MinFillThreshold 是触发补充的最小阈值
	MinFillThreshold = 100
	// maxAttempts 单个短码的最大生成次数
	maxAttempts = 10
)

// ErrExhausted 多次生成均与已有短码冲突
var ErrExhausted = errors.New("shortcode: all attempts collided with existing codes")

// ExistsFunc 判断短码是否已被占用
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator 负责生成和提供短码
// 未调用 Start 时 GetCode 同步生成
type Generator struct {
	length    int
	exists    ExistsFunc
	codeChan  chan string
	mu        sync.Mutex
	isFilling bool
	stopChan  chan struct{}
	stopOnce  sync.Once
	logger    *zap.SugaredLogger
}

// NewGenerator 创建一个新的短码生成器实例，exists 可以为 nil
func NewGenerator(length int, exists ExistsFunc, logger *zap.SugaredLogger) *Generator {
	if length <= 0 {
		length = DefaultCodeLength
	}
	return &Generator{
		length:   length,
		exists:   exists,
		codeChan: make(chan string, ChannelBufferSize),
		stopChan: make(chan struct{}),
		logger:   logger.Named("shortcode_generator"),
	}
}

// Start 启动后台短码生成和补充任务
func (g *Generator) Start() {
	g.logger.Info("启动短码生成器...")
	go g.fillChannel()
	go g.monitorAndRefill()
}

// Stop 停止短码生成器，可重复调用
func (g *Generator) Stop() {
	g.stopOnce.Do(func() {
		g.logger.Info("正在停止短码生成器...")
		close(g.stopChan)
	})
}

// GetCode 优先从通道取预生成的短码，通道为空时同步生成
func (g *Generator) GetCode(ctx context.Context) (string, error) {
	select {
	case code := <-g.codeChan:
		return code, nil
	default:
	}
	return g.generateUniqueCode(ctx)
}

// monitorAndRefill 监视通道的填充水平并根据需要进行补充
func (g *Generator) monitorAndRefill() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if len(g.codeChan) < MinFillThreshold {
				g.fillChannel()
			}
		case <-g.stopChan:
			g.logger.Info("已停止监控和补充任务。")
			return
		}
	}
}

// fillChannel 生成短码并填充通道，同一时间只有一个填充任务
func (g *Generator) fillChannel() {
	g.mu.Lock()
	if g.isFilling {
		g.mu.Unlock()
		return
	}
	g.isFilling = true
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		g.isFilling = false
		g.mu.Unlock()
	}()

	g.logger.Debugf("通道中剩余 %d 个短码，开始补充...", len(g.codeChan))
	ctx := context.Background()
	for len(g.codeChan) < ChannelBufferSize {
		select {
		case <-g.stopChan:
			g.logger.Info("填充任务已中断。")
			return
		default:
		}

		code, err := g.generateUniqueCode(ctx)
		if err != nil {
			g.logger.Errorf("生成唯一短码时出错: %v", err)
			select {
			case <-g.stopChan:
				return
			case <-time.After(100 * time.Millisecond): // 避免在错误情况下快速循环
			}
			continue
		}

		select {
		case g.codeChan <- code:
		case <-g.stopChan:
			return
		}
	}
	g.logger.Debugf("短码通道已填满，现有 %d 个。", len(g.codeChan))
}

// generateUniqueCode 生成一个当前未被占用的短码
// 插入时仍可能冲突，由调用方处理
func (g *Generator) generateUniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		code, err := RandomString(g.length)
		if err != nil {
			return "", err
		}
		if g.exists == nil {
			return code, nil
		}
		taken, err := g.exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	g.logger.Warnf("已尝试%d次生成短码，但均存在冲突。", maxAttempts)
	return "", ErrExhausted
}

// RandomString 使用加密安全的随机数生成器生成一个给定长度的字符串
func RandomString(length int) (string, error) {
	b := make([]byte, length)
	max := big.NewInt(int64(len(Charset)))
	for i := range b {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = Charset[num.Int64()]
	}
	return string(b), nil
}
