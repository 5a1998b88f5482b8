package quota

import (
	"sync"
	"time"

	"ai-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// Level 單位額度使用程度
type Level string

const (
	LevelOK       Level = "ok"
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

// UnitDecision 單位額度檢查結果
type UnitDecision struct {
	Allowed     bool          `json:"allowed"`
	Level       Level         `json:"level"`
	Used        int           `json:"used"`
	Remaining   int           `json:"remaining"`
	Limit       int           `json:"limit"`
	PercentUsed float64       `json:"percentUsed"`
	ResetIn     time.Duration `json:"-"`
}

// UnitBudget 以每日單位計算的額度（影片搜尋），每天 UTC 零點重置
type UnitBudget struct {
	provider   string
	dailyLimit int
	now        Clock
	mu         sync.Mutex
	dayStart   time.Time
	used       int
}

// NewUnitBudget 建立單位額度
func NewUnitBudget(providerName string, dailyLimit int, now Clock) *UnitBudget {
	if now == nil {
		now = time.Now
	}
	return &UnitBudget{provider: providerName, dailyLimit: dailyLimit, now: now}
}

// Provider 供應商名稱
func (b *UnitBudget) Provider() string {
	return b.provider
}

func (b *UnitBudget) current(now time.Time) (time.Time, int) {
	d := dayStart(now, time.UTC)
	if d.After(b.dayStart) {
		return d, 0
	}
	return b.dayStart, b.used
}

func (b *UnitBudget) decide(used, cost int, day, now time.Time) UnitDecision {
	pct := 0.0
	if b.dailyLimit > 0 {
		pct = float64(used) * 100 / float64(b.dailyLimit)
	}
	level := LevelOK
	switch {
	case pct > 95:
		level = LevelCritical
	case pct >= 80:
		level = LevelWarning
	}
	remaining := b.dailyLimit - used
	if remaining < 0 {
		remaining = 0
	}
	return UnitDecision{
		Allowed:     used+cost <= b.dailyLimit,
		Level:       level,
		Used:        used,
		Remaining:   remaining,
		Limit:       b.dailyLimit,
		PercentUsed: pct,
		ResetIn:     day.AddDate(0, 0, 1).Sub(now),
	}
}

// Check 檢查 cost 個單位是否可用，不消耗額度
func (b *UnitBudget) Check(cost int) UnitDecision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	day, used := b.current(now)
	return b.decide(used, cost, day, now)
}

// Consume 可用時消耗 cost 個單位，回傳消耗前的判斷
func (b *UnitBudget) Consume(cost int) UnitDecision {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.dayStart, b.used = b.current(now)
	d := b.decide(b.used, cost, b.dayStart, now)
	if !d.Allowed {
		common.LogWarn("單位額度不足",
			zap.String("provider", b.provider),
			zap.Int("used", b.used),
			zap.Int("cost", cost),
		)
		return d
	}
	if cost > 0 {
		b.used += cost
	}
	return d
}
