package observability

import (
	"sort"
	"sync"
	"time"
)

type Role string

const (
	RoleIdle   Role = "IDLE"
	RoleLeader Role = "LEADER"
	RoleExpert Role = "EXPERT"
)

// ChatStatus is the live activity of one conversation.
type ChatStatus struct {
	ChatID    string
	Role      Role
	Task      string
	UpdatedAt time.Time
}

type statusBoard struct {
	mu    sync.RWMutex
	chats map[string]ChatStatus
}

var globalStatus = &statusBoard{chats: make(map[string]ChatStatus)}

// SetStatus updates the activity of a conversation. RoleIdle removes it.
func SetStatus(chatID string, role Role, task string) {
	globalStatus.mu.Lock()
	defer globalStatus.mu.Unlock()
	if role == RoleIdle {
		delete(globalStatus.chats, chatID)
		return
	}
	globalStatus.chats[chatID] = ChatStatus{
		ChatID:    chatID,
		Role:      role,
		Task:      task,
		UpdatedAt: time.Now(),
	}
}

// Snapshot returns the active conversations ordered by chat ID.
func Snapshot() []ChatStatus {
	globalStatus.mu.RLock()
	defer globalStatus.mu.RUnlock()
	out := make([]ChatStatus, 0, len(globalStatus.chats))
	for _, s := range globalStatus.chats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChatID < out[j].ChatID })
	return out
}
