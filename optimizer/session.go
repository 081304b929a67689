package optimizer

import (
	"sync"
	"time"

	"github.com/BaSui01/promptgate/types"
	"go.uber.org/zap"
)

// SessionRecord 会话内单次优化的记录。
type SessionRecord struct {
	Timestamp    time.Time      `json:"timestamp"`
	Strategy     types.Strategy `json:"strategy"`
	TemplateID   string         `json:"template_id,omitempty"`
	TokensSaved  int64          `json:"tokens_saved"`
	QualityScore float64        `json:"quality_score"`
	Success      bool           `json:"success"`
}

// SessionState 按会话累积的优化记忆。
type SessionState struct {
	ID            string          `json:"id"`
	History       []SessionRecord `json:"history"`
	TemplatesUsed []string        `json:"templates_used"`
	Constraints   []string        `json:"constraints,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// SessionStore 内存会话存储。历史超过上限时丢弃最旧记录，
// 会话本身不做自动过期，生命周期由调用方的 session id 约定决定。
type SessionStore struct {
	mu           sync.RWMutex
	sessions     map[string]*SessionState
	historyLimit int
	logger       *zap.Logger

	now func() time.Time
}

// NewSessionStore 创建会话存储。historyLimit 非正值取 50。
func NewSessionStore(historyLimit int, logger *zap.Logger) *SessionStore {
	if historyLimit <= 0 {
		historyLimit = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		sessions:     make(map[string]*SessionState),
		historyLimit: historyLimit,
		logger:       logger.With(zap.String("component", "session_store")),
		now:          time.Now,
	}
}

func (s *SessionStore) getOrCreateLocked(sessionID string) *SessionState {
	state, ok := s.sessions[sessionID]
	if !ok {
		now := s.now()
		state = &SessionState{ID: sessionID, CreatedAt: now, UpdatedAt: now}
		s.sessions[sessionID] = state
	}
	return state
}

// Record 追加一条优化记录。
func (s *SessionStore) Record(sessionID string, rec SessionRecord) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.getOrCreateLocked(sessionID)
	state.History = append(state.History, rec)
	if len(state.History) > s.historyLimit {
		state.History = state.History[len(state.History)-s.historyLimit:]
	}
	state.UpdatedAt = s.now()
}

// AppendTemplate 将模板 ID 追加进会话的已用模板列表。
func (s *SessionStore) AppendTemplate(sessionID, templateID string) {
	if sessionID == "" || templateID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.getOrCreateLocked(sessionID)
	state.TemplatesUsed = append(state.TemplatesUsed, templateID)
	state.UpdatedAt = s.now()
}

// SetConstraints 记录会话级约束，供后续请求的策略选择使用。
func (s *SessionStore) SetConstraints(sessionID string, constraints []string) {
	if sessionID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.getOrCreateLocked(sessionID)
	state.Constraints = append([]string(nil), constraints...)
	state.UpdatedAt = s.now()
}

// Get 返回会话快照。
func (s *SessionStore) Get(sessionID string) (*SessionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.sessions[sessionID]
	if !ok {
		return nil, false
	}
	out := *state
	out.History = append([]SessionRecord(nil), state.History...)
	out.TemplatesUsed = append([]string(nil), state.TemplatesUsed...)
	out.Constraints = append([]string(nil), state.Constraints...)
	return &out, true
}

// Delete 删除会话。
func (s *SessionStore) Delete(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Len 返回当前会话数。
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
