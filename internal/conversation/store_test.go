package conversation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/anatolykoptev/huddle/internal/config"
)

// storeContract runs the behaviour every backend must share.
func storeContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		st, err := s.Create(ctx, "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		if len(st.ChatID) != 26 {
			t.Errorf("ChatID %q is not a ULID", st.ChatID)
		}
		got, err := s.Get(ctx, st.ChatID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Title != "" || len(got.Messages) != 0 || got.Messages == nil {
			t.Errorf("fresh chat = %+v", got)
		}
	})

	t.Run("create is idempotent", func(t *testing.T) {
		if _, err := s.Create(ctx, "ctx-1"); err != nil {
			t.Fatal(err)
		}
		if err := s.Append(ctx, "ctx-1", NewMessage(RoleUser, "hi")); err != nil {
			t.Fatal(err)
		}
		st, err := s.Create(ctx, "ctx-1")
		if err != nil {
			t.Fatal(err)
		}
		if len(st.Messages) != 1 {
			t.Errorf("re-Create lost messages: %+v", st)
		}
	})

	t.Run("append keeps order and fields", func(t *testing.T) {
		st, _ := s.Create(ctx, "")
		fn := NewMessage(RoleFunction, `{"userInfo":{"user_id":"123"},"userLeagues":[]}`)
		fn.Name = "getUserInfo"
		fn.ToolCallID = "call_1"
		fn.Arguments = `{"username":"testuser"}`
		if err := s.Append(ctx, st.ChatID, NewMessage(RoleUser, "who is testuser?")); err != nil {
			t.Fatal(err)
		}
		if err := s.Append(ctx, st.ChatID, fn, Message{Role: RoleSystem, Content: "[note]"}); err != nil {
			t.Fatal(err)
		}

		got, err := s.Get(ctx, st.ChatID)
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Messages) != 3 {
			t.Fatalf("len(Messages) = %d, want 3", len(got.Messages))
		}
		roles := []Role{got.Messages[0].Role, got.Messages[1].Role, got.Messages[2].Role}
		if roles[0] != RoleUser || roles[1] != RoleFunction || roles[2] != RoleSystem {
			t.Errorf("roles = %v", roles)
		}
		m := got.Messages[1]
		if m.Content != fn.Content || m.Name != "getUserInfo" || m.ToolCallID != "call_1" || m.Arguments != fn.Arguments {
			t.Errorf("function message = %+v", m)
		}
		if m.ID != fn.ID {
			t.Errorf("ID = %q, want %q", m.ID, fn.ID)
		}
		if sys := got.Messages[2]; sys.ID == "" || sys.CreatedAt.IsZero() {
			t.Errorf("system message not stamped: %+v", sys)
		}
		if got.Title != "who is testuser?" {
			t.Errorf("Title = %q", got.Title)
		}
	})

	t.Run("title is set once", func(t *testing.T) {
		st, _ := s.Create(ctx, "")
		_ = s.Append(ctx, st.ChatID, NewMessage(RoleUser, "first"))
		_ = s.Append(ctx, st.ChatID, NewMessage(RoleUser, "second"))
		got, _ := s.Get(ctx, st.ChatID)
		if got.Title != "first" {
			t.Errorf("Title = %q, want first", got.Title)
		}
	})

	t.Run("unknown chat", func(t *testing.T) {
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get = %v, want ErrNotFound", err)
		}
		if err := s.Append(ctx, "nope", NewMessage(RoleUser, "x")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Append = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("Delete = %v, want ErrNotFound", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		st, _ := s.Create(ctx, "")
		_ = s.Append(ctx, st.ChatID, NewMessage(RoleUser, "x"))
		if err := s.Delete(ctx, st.ChatID); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, st.ChatID); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get after Delete = %v", err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, NewMemory())
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	st, _ := s.Create(ctx, "c")
	_ = s.Append(ctx, "c", NewMessage(RoleUser, "a"))
	got, _ := s.Get(ctx, st.ChatID)
	got.Messages[0].Content = "mutated"
	again, _ := s.Get(ctx, st.ChatID)
	if again.Messages[0].Content != "a" {
		t.Error("Get exposed internal state")
	}
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "huddle.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	storeContract(t, s)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "huddle.db")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	st, _ := s.Create(ctx, "")
	_ = s.Append(ctx, st.ChatID, NewMessage(RoleUser, "persist me"))
	s.Close()

	s2, err := OpenSQLite(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, st.ChatID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "persist me" {
		t.Errorf("reopened chat = %+v", got)
	}
}

func TestTitleFrom(t *testing.T) {
	long := strings.Repeat("é", 150)
	tests := []struct {
		name string
		msgs []Message
		want string
	}{
		{"no user message", []Message{{Role: RoleSystem, Content: "x"}}, ""},
		{"first user wins", []Message{{Role: RoleFunction, Content: "{}"}, {Role: RoleUser, Content: "  hello  "}, {Role: RoleUser, Content: "b"}}, "hello"},
		{"truncated by runes", []Message{{Role: RoleUser, Content: long}}, strings.Repeat("é", 100)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TitleFrom(tt.msgs); got != tt.want {
				t.Errorf("TitleFrom = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, config.StoreConfig{Driver: config.DriverMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*Memory); !ok {
		t.Errorf("Open(memory) = %T", s)
	}

	s, err = Open(ctx, config.StoreConfig{Driver: config.DriverSQLite, DSN: filepath.Join(t.TempDir(), "x.db")})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, ok := s.(*SQLite); !ok {
		t.Errorf("Open(sqlite) = %T", s)
	}

	if _, err := Open(ctx, config.StoreConfig{Driver: "mongo"}); err == nil {
		t.Error("Open(mongo) error = nil")
	}
}
