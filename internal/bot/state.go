package bot

import "sync"

type inputStep string

const (
	stepNone          inputStep = "none"
	stepAwaitingName  inputStep = "awaiting_name"
	stepAwaitingPhone inputStep = "awaiting_phone"
)

// chatState links a Telegram user to its booking session and tracks the free
// text the bot is waiting for.
type chatState struct {
	SessionID   string
	Step        inputStep
	PendingName string
}

type stateStore struct {
	mu sync.Mutex
	m  map[int64]chatState
}

func newStateStore() *stateStore {
	return &stateStore{m: make(map[int64]chatState)}
}

func (s *stateStore) get(userID int64) chatState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[userID]
	if !ok {
		return chatState{Step: stepNone}
	}
	return st
}

func (s *stateStore) set(userID int64, st chatState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[userID] = st
}

// update applies fn to the stored state of userID.
func (s *stateStore) update(userID int64, fn func(*chatState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[userID]
	if !ok {
		st = chatState{Step: stepNone}
	}
	fn(&st)
	s.m[userID] = st
}

func (s *stateStore) reset(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, userID)
}
