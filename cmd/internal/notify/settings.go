package notify

import (
	"strings"
	"sync"
)

// Settings is one session's Telegram configuration.
type Settings struct {
	BotToken string
	ChatID   string
	Enabled  bool
}

// SettingsView is the client-facing form. The chat id is masked.
type SettingsView struct {
	Enabled bool    `json:"enabled"`
	ChatID  *string `json:"chat_id"`
}

// Store holds per-session settings.
type Store struct {
	mu       sync.RWMutex
	settings map[string]Settings
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{settings: make(map[string]Settings)}
}

// Configure enables notifications for a session.
func (s *Store) Configure(sessionID, botToken, chatID string) SettingsView {
	st := Settings{
		BotToken: strings.TrimSpace(botToken),
		ChatID:   strings.TrimSpace(chatID),
	}
	st.Enabled = st.BotToken != "" && st.ChatID != ""

	s.mu.Lock()
	s.settings[sessionID] = st
	s.mu.Unlock()
	return st.view()
}

// Get returns the session's settings, zero if never configured.
func (s *Store) Get(sessionID string) Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings[sessionID]
}

// View returns the masked settings.
func (s *Store) View(sessionID string) SettingsView {
	return s.Get(sessionID).view()
}

// Disable turns notifications off but keeps the chat id for display.
func (s *Store) Disable(sessionID string) {
	s.mu.Lock()
	if st, ok := s.settings[sessionID]; ok {
		st.Enabled = false
		s.settings[sessionID] = st
	}
	s.mu.Unlock()
}

// Forget drops a session's settings.
func (s *Store) Forget(sessionID string) {
	s.mu.Lock()
	delete(s.settings, sessionID)
	s.mu.Unlock()
}

// Len returns the number of sessions with stored settings.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.settings)
}

func (st Settings) view() SettingsView {
	v := SettingsView{Enabled: st.Enabled}
	if st.ChatID != "" {
		m := maskChatID(st.ChatID)
		v.ChatID = &m
	}
	return v
}

// maskChatID keeps the last four characters and stars the rest.
func maskChatID(id string) string {
	r := []rune(id)
	if len(r) <= 4 {
		return id
	}
	return strings.Repeat("*", len(r)-4) + string(r[len(r)-4:])
}
