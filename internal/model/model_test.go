package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMessageJSONKeys(t *testing.T) {
	msg := NewUserMessage("hi", map[string]any{"provider": "openai"})
	msg.SessionID = "s1"

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "user", raw["type"])
	require.Equal(t, "hi", raw["content"])
	require.Equal(t, "s1", raw["session_id"])
	require.Contains(t, raw, "timestamp")
	require.NotContains(t, raw, "agent_name")
}

func TestMessageKindValid(t *testing.T) {
	for _, k := range []MessageKind{MessageKindUser, MessageKindAssistant, MessageKindSystem, MessageKindError, MessageKindAction, MessageKindResult} {
		if !k.Valid() {
			t.Errorf("expected %q to be valid", k)
		}
	}
	if MessageKind("bogus").Valid() {
		t.Errorf("expected bogus kind to be invalid")
	}
}

func TestMessageClone(t *testing.T) {
	msg := NewUserMessage("hi", map[string]any{"k": "v"})
	clone := msg.Clone()
	clone.Metadata["k"] = "changed"

	require.Equal(t, "v", msg.MetadataString("k"))
	require.Equal(t, "", msg.MetadataString("missing"))
}

func TestSessionRecentMessages(t *testing.T) {
	s := NewSession("s1", "", time.Now())
	require.Empty(t, s.RecentMessages(10))

	for _, c := range []string{"a", "b", "c", "d"} {
		s.Messages = append(s.Messages, NewUserMessage(c, nil))
	}

	tests := []struct {
		limit int
		want  []string
	}{
		{limit: 2, want: []string{"c", "d"}},
		{limit: 4, want: []string{"a", "b", "c", "d"}},
		{limit: 10, want: []string{"a", "b", "c", "d"}},
		{limit: 0, want: []string{"a", "b", "c", "d"}},
	}
	for _, tt := range tests {
		got := s.RecentMessages(tt.limit)
		contents := make([]string, len(got))
		for i, m := range got {
			contents[i] = m.Content
		}
		require.Equal(t, tt.want, contents, "limit %d", tt.limit)
	}
}

func TestSessionWorkspace(t *testing.T) {
	s := NewSession("s1", "", time.Now())
	require.Equal(t, "/default", s.Workspace("/default"))

	s.Context[ContextKeyWorkspacePath] = "/from-context"
	require.Equal(t, "/from-context", s.Workspace("/default"))

	s.WorkspacePath = "/explicit"
	require.Equal(t, "/explicit", s.Workspace("/default"))
}

func TestSessionCloneIsDeep(t *testing.T) {
	s := NewSession("s1", "u", time.Now())
	s.Messages = append(s.Messages, NewUserMessage("a", map[string]any{"k": "v"}))
	s.Context["lang"] = "go"

	clone := s.Clone()
	clone.Messages[0].Content = "changed"
	clone.Messages[0].Metadata["k"] = "changed"
	clone.Messages = append(clone.Messages, NewUserMessage("b", nil))
	clone.Context["lang"] = "rust"

	require.Len(t, s.Messages, 1)
	require.Equal(t, "a", s.Messages[0].Content)
	require.Equal(t, "v", s.Messages[0].Metadata["k"])
	require.Equal(t, "go", s.Context["lang"])
}

func TestSessionJSONUsesSessionID(t *testing.T) {
	s := NewSession("s1", "", time.Now())
	data, err := json.Marshal(s)
	require.NoError(t, err)
	require.Contains(t, string(data), `"session_id":"s1"`)
	require.Contains(t, string(data), `"messages":[]`)
}
