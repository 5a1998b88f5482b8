// Package quota 追蹤各 AI 供應商的請求與 token 額度
package quota

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"ai-chef/internal/core/ai/provider"
	"ai-chef/internal/pkg/common"

	"go.uber.org/zap"
)

// ErrUnknownReservation 預留不存在或已結算
var ErrUnknownReservation = errors.New("unknown quota reservation")

// Clock 可注入的時鐘
type Clock func() time.Time

// LLMLimits 供應商額度，0 表示不限制
type LLMLimits struct {
	RPM int `json:"rpm"`
	TPM int `json:"tpm"`
	RPD int `json:"rpd"`
	TPD int `json:"tpd"`
}

// State 單一供應商的額度狀態
type State struct {
	WindowStartMinute  time.Time `json:"windowStartMinute"`
	RequestsThisMinute int       `json:"requestsThisMinute"`
	TokensThisMinute   int       `json:"tokensThisMinute"`
	WindowStartDay     time.Time `json:"windowStartDay"`
	RequestsToday      int       `json:"requestsToday"`
	TokensToday        int       `json:"tokensToday"`
	Limits             LLMLimits `json:"limits"`
}

// Reservation 允許後預留的額度，需 Commit 或 Release
type Reservation struct {
	ID          string
	Provider    string
	Tokens      int
	minuteStart time.Time
	dayStart    time.Time
}

// Decision CheckAndReserve 的結果
type Decision struct {
	Allowed     bool
	Reason      string
	State       State
	ResetIn     time.Duration
	Reservation *Reservation
}

// Tracker 單一 LLM 供應商的額度追蹤
type Tracker struct {
	provider     string
	loc          *time.Location
	now          Clock
	mu           sync.Mutex
	state        State
	reservations map[string]Reservation
}

// NewTracker 建立額度追蹤；loc 決定「一天」的邊界，nil 時使用 UTC
func NewTracker(providerName string, limits LLMLimits, loc *time.Location, now Clock) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		provider:     providerName,
		loc:          loc,
		now:          now,
		state:        State{Limits: limits},
		reservations: make(map[string]Reservation),
	}
}

// Provider 供應商名稱
func (t *Tracker) Provider() string {
	return t.provider
}

func minuteStart(now time.Time) time.Time {
	return now.Truncate(time.Minute)
}

func dayStart(now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// rolled 回傳把過期窗口歸零後的狀態
func (t *Tracker) rolled(st State, now time.Time) State {
	if m := minuteStart(now); m.After(st.WindowStartMinute) {
		st.WindowStartMinute = m
		st.RequestsThisMinute = 0
		st.TokensThisMinute = 0
	}
	if d := dayStart(now, t.loc); d.After(st.WindowStartDay) {
		st.WindowStartDay = d
		st.RequestsToday = 0
		st.TokensToday = 0
	}
	return st
}

func (t *Tracker) minuteResetIn(st State, now time.Time) time.Duration {
	return st.WindowStartMinute.Add(time.Minute).Sub(now)
}

func (t *Tracker) dayResetIn(st State, now time.Time) time.Duration {
	d := st.WindowStartDay
	next := time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, t.loc)
	return next.Sub(now)
}

// evaluate 以 estimate 個 token 判斷 st 是否允許；拒絕時回傳最晚恢復的原因
func (t *Tracker) evaluate(st State, now time.Time, estimate int) (string, time.Duration) {
	lim := st.Limits

	var reason string
	var resetIn time.Duration
	deny := func(r string, in time.Duration) {
		if reason == "" || in > resetIn {
			reason, resetIn = r, in
		}
	}

	if lim.RPM > 0 && st.RequestsThisMinute >= lim.RPM {
		deny("requests per minute limit reached", t.minuteResetIn(st, now))
	}
	if lim.TPM > 0 && st.TokensThisMinute+estimate > lim.TPM {
		deny("tokens per minute limit reached", t.minuteResetIn(st, now))
	}
	if lim.RPD > 0 && st.RequestsToday >= lim.RPD {
		deny("daily request limit reached", t.dayResetIn(st, now))
	}
	if lim.TPD > 0 && st.TokensToday+estimate > lim.TPD {
		deny("daily token limit reached", t.dayResetIn(st, now))
	}
	return reason, resetIn
}

// Check 唯讀判斷 estimate 個 token 的請求是否允許，不預留也不寫回狀態
func (t *Tracker) Check(estimate int) Decision {
	if estimate < 0 {
		estimate = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st := t.rolled(t.state, now)
	if reason, resetIn := t.evaluate(st, now, estimate); reason != "" {
		return Decision{Allowed: false, Reason: reason, State: st, ResetIn: resetIn}
	}
	return Decision{Allowed: true, Reason: "ok", State: st}
}

// CheckAndReserve 先滾動過期窗口，再判斷 estimate 個 token 的請求是否允許
// 允許時預留 1 次請求與 estimate 個 token；State 為判斷當下的狀態
func (t *Tracker) CheckAndReserve(estimate int) Decision {
	if estimate < 0 {
		estimate = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.state = t.rolled(t.state, now)
	st := t.state

	if reason, resetIn := t.evaluate(st, now, estimate); reason != "" {
		common.LogWarn("額度不足",
			zap.String("provider", t.provider),
			zap.String("reason", reason),
			zap.Duration("reset_in", resetIn),
		)
		return Decision{Allowed: false, Reason: reason, State: st, ResetIn: resetIn}
	}

	t.state.RequestsThisMinute++
	t.state.RequestsToday++
	t.state.TokensThisMinute += estimate
	t.state.TokensToday += estimate

	res := Reservation{
		ID:          common.GenerateUUID(),
		Provider:    t.provider,
		Tokens:      estimate,
		minuteStart: st.WindowStartMinute,
		dayStart:    st.WindowStartDay,
	}
	t.reservations[res.ID] = res

	return Decision{Allowed: true, Reason: "ok", State: st, Reservation: &res}
}

// Commit 以實際 token 數結算預留
func (t *Tracker) Commit(res *Reservation, actualTokens int) error {
	if res == nil {
		return ErrUnknownReservation
	}
	if actualTokens < 0 {
		actualTokens = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stored, ok := t.reservations[res.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, res.ID)
	}
	delete(t.reservations, res.ID)

	t.state = t.rolled(t.state, t.now())
	delta := actualTokens - stored.Tokens
	if stored.minuteStart.Equal(t.state.WindowStartMinute) {
		t.state.TokensThisMinute = nonNegative(t.state.TokensThisMinute + delta)
	}
	if stored.dayStart.Equal(t.state.WindowStartDay) {
		t.state.TokensToday = nonNegative(t.state.TokensToday + delta)
	}
	return nil
}

// Release 取消預留（供應商呼叫失敗時）
func (t *Tracker) Release(res *Reservation) error {
	if res == nil {
		return ErrUnknownReservation
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	stored, ok := t.reservations[res.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownReservation, res.ID)
	}
	delete(t.reservations, res.ID)

	t.state = t.rolled(t.state, t.now())
	if stored.minuteStart.Equal(t.state.WindowStartMinute) {
		t.state.RequestsThisMinute = nonNegative(t.state.RequestsThisMinute - 1)
		t.state.TokensThisMinute = nonNegative(t.state.TokensThisMinute - stored.Tokens)
	}
	if stored.dayStart.Equal(t.state.WindowStartDay) {
		t.state.RequestsToday = nonNegative(t.state.RequestsToday - 1)
		t.state.TokensToday = nonNegative(t.state.TokensToday - stored.Tokens)
	}
	return nil
}

// Record 直接記錄已發生的用量
func (t *Tracker) Record(requests, tokens int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = t.rolled(t.state, t.now())
	requests, tokens = nonNegative(requests), nonNegative(tokens)
	t.state.RequestsThisMinute += requests
	t.state.RequestsToday += requests
	t.state.TokensThisMinute += tokens
	t.state.TokensToday += tokens
}

// ApplyRateLimit 以供應商回報的用量覆蓋本地計數
// 需在該次呼叫的預留 Commit 或 Release 之後呼叫，否則結算會改動供應商的數字
func (t *Tracker) ApplyRateLimit(snap *provider.RateLimitSnapshot) {
	if snap == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = t.rolled(t.state, t.now())

	if snap.HasRequests && snap.RequestsLimit > 0 {
		used := nonNegative(snap.RequestsLimit - snap.RequestsRemaining)
		switch snap.RequestsWindow {
		case provider.WindowDay:
			t.state.RequestsToday = used
			t.state.Limits.RPD = snap.RequestsLimit
		case provider.WindowMinute:
			t.state.RequestsThisMinute = used
			t.state.Limits.RPM = snap.RequestsLimit
		}
	}
	if snap.HasTokens && snap.TokensLimit > 0 {
		used := nonNegative(snap.TokensLimit - snap.TokensRemaining)
		switch snap.TokensWindow {
		case provider.WindowDay:
			t.state.TokensToday = used
			t.state.Limits.TPD = snap.TokensLimit
		case provider.WindowMinute:
			t.state.TokensThisMinute = used
			t.state.Limits.TPM = snap.TokensLimit
		}
	}

	common.LogDebug("已套用供應商額度回報",
		zap.String("provider", t.provider),
		zap.Int("requests_today", t.state.RequestsToday),
		zap.Int("tokens_this_minute", t.state.TokensThisMinute),
	)
}

// Status 回傳目前狀態；過期窗口以 0 呈現但不寫回
func (t *Tracker) Status() (State, time.Duration, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	st := t.rolled(t.state, now)
	return st, t.minuteResetIn(st, now), t.dayResetIn(st, now)
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
