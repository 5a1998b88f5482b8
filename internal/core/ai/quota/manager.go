package quota

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"ai-chef/internal/infrastructure/config"
	"ai-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrUnknownProvider 沒有註冊的供應商
var ErrUnknownProvider = errors.New("unknown quota provider")

// ProviderStatus 額度唯讀狀態
type ProviderStatus struct {
	Provider      string        `json:"provider"`
	Kind          string        `json:"kind"`
	LLM           *State        `json:"llm,omitempty"`
	Units         *UnitDecision `json:"units,omitempty"`
	MinuteResetIn string        `json:"minuteResetIn,omitempty"`
	DayResetIn    string        `json:"dayResetIn"`
}

// Manager 各供應商額度的註冊表
type Manager struct {
	mu       sync.RWMutex
	trackers map[string]*Tracker
	budgets  map[string]*UnitBudget
}

// NewManager 建立空的額度管理器
func NewManager() *Manager {
	return &Manager{
		trackers: make(map[string]*Tracker),
		budgets:  make(map[string]*UnitBudget),
	}
}

// NewManagerFromConfig 依設定建立 gemini、groq 與 youtube 的額度
func NewManagerFromConfig(cfg config.QuotaConfig, now Clock) *Manager {
	m := NewManager()
	m.Register(NewTracker("gemini", limitsFrom(cfg.Gemini), loadLocation(cfg.Gemini.Timezone), now))
	m.Register(NewTracker("groq", limitsFrom(cfg.Groq), loadLocation(cfg.Groq.Timezone), now))
	if cfg.YouTubeDailyUnits > 0 {
		m.RegisterBudget(NewUnitBudget("youtube", cfg.YouTubeDailyUnits, now))
	}
	return m
}

func limitsFrom(c config.LimitsConfig) LLMLimits {
	return LLMLimits{RPM: c.RPM, TPM: c.TPM, RPD: c.RPD, TPD: c.TPD}
}

// loadLocation 無法載入時區時退回 UTC
func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		common.LogWarn("無法載入時區，改用 UTC", zap.String("timezone", name), zap.Error(err))
		return time.UTC
	}
	return loc
}

// Register 註冊 LLM 額度
func (m *Manager) Register(t *Tracker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackers[strings.ToLower(t.Provider())] = t
}

// RegisterBudget 註冊單位額度
func (m *Manager) RegisterBudget(b *UnitBudget) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[strings.ToLower(b.Provider())] = b
}

// Tracker 取得 LLM 額度
func (m *Manager) Tracker(name string) (*Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.trackers[strings.ToLower(name)]
	return t, ok
}

// Budget 取得單位額度
func (m *Manager) Budget(name string) (*UnitBudget, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.budgets[strings.ToLower(name)]
	return b, ok
}

// Status 唯讀查詢單一供應商，不會消耗或寫回額度
func (m *Manager) Status(name string) (ProviderStatus, error) {
	if t, ok := m.Tracker(name); ok {
		st, minuteIn, dayIn := t.Status()
		return ProviderStatus{
			Provider:      t.Provider(),
			Kind:          "llm",
			LLM:           &st,
			MinuteResetIn: common.FormatResetIn(minuteIn),
			DayResetIn:    common.FormatResetIn(dayIn),
		}, nil
	}
	if b, ok := m.Budget(name); ok {
		d := b.Check(0)
		return ProviderStatus{
			Provider:   b.Provider(),
			Kind:       "units",
			Units:      &d,
			DayResetIn: common.FormatResetIn(d.ResetIn),
		}, nil
	}
	return ProviderStatus{}, ErrUnknownProvider
}

// StatusAll 依名稱排序回傳所有供應商狀態
func (m *Manager) StatusAll() []ProviderStatus {
	m.mu.RLock()
	names := make([]string, 0, len(m.trackers)+len(m.budgets))
	for n := range m.trackers {
		names = append(names, n)
	}
	for n := range m.budgets {
		names = append(names, n)
	}
	m.mu.RUnlock()

	sort.Strings(names)
	out := make([]ProviderStatus, 0, len(names))
	for _, n := range names {
		if st, err := m.Status(n); err == nil {
			out = append(out, st)
		}
	}
	return out
}
