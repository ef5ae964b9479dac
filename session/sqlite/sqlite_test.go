package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	parley "github.com/nevindra/parley"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "sessions.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func memoryWith(texts ...string) *parley.InMemory {
	mem := parley.NewInMemory()
	for _, text := range texts {
		mem.Add(parley.TextMsg("user", parley.RoleUser, text))
	}
	return mem
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved := memoryWith("Hello", "Bye")
	if err := s.Save(ctx, "chat-1", map[string]parley.StateModule{"memory": saved}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := parley.NewInMemory()
	if err := s.Load(ctx, "chat-1", false, map[string]parley.StateModule{"memory": restored}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	msgs := restored.Messages()
	if len(msgs) != 2 {
		t.Fatalf("restored %d messages, want 2", len(msgs))
	}
	if msgs[0].Text() != "Hello" || msgs[1].Text() != "Bye" {
		t.Errorf("restored texts = %q, %q, want Hello, Bye", msgs[0].Text(), msgs[1].Text())
	}
}

func TestSaveOverwrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "chat-1", map[string]parley.StateModule{"memory": memoryWith("old")}); err != nil {
		t.Fatalf("first Save: %v", err)
	}
	if err := s.Save(ctx, "chat-1", map[string]parley.StateModule{"memory": memoryWith("new", "newer")}); err != nil {
		t.Fatalf("second Save: %v", err)
	}

	restored := parley.NewInMemory()
	if err := s.Load(ctx, "chat-1", false, map[string]parley.StateModule{"memory": restored}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Size() != 2 {
		t.Errorf("restored %d messages, want the 2 from the second save", restored.Size())
	}
}

func TestLoadMissing(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	restored := memoryWith("untouched")
	err := s.Load(ctx, "nope", false, map[string]parley.StateModule{"memory": restored})
	if err == nil {
		t.Fatal("Load of a missing session should fail")
	}

	if err := s.Load(ctx, "nope", true, map[string]parley.StateModule{"memory": restored}); err != nil {
		t.Fatalf("Load with allowMissing: %v", err)
	}
	if restored.Size() != 1 {
		t.Errorf("allowMissing load touched the module: %d messages", restored.Size())
	}
}

func TestLoadSkipsAbsentModule(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "chat-1", map[string]parley.StateModule{"memory": memoryWith("hi")}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := parley.NewInMemory()
	other := memoryWith("keep me")
	modules := map[string]parley.StateModule{"memory": restored, "scratch": other}
	if err := s.Load(ctx, "chat-1", false, modules); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if restored.Size() != 1 {
		t.Errorf("memory module not restored: %d messages", restored.Size())
	}
	if other.Size() != 1 || other.Messages()[0].Text() != "keep me" {
		t.Error("module absent from the save was modified")
	}
}

func TestExistsAndDelete(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Error("Exists before save = true, want false")
	}

	if err := s.Save(ctx, "chat-1", map[string]parley.StateModule{"memory": memoryWith("hi")}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ok, _ := s.Exists(ctx, "chat-1"); !ok {
		t.Error("Exists after save = false, want true")
	}

	deleted, err := s.Delete(ctx, "chat-1")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if !deleted {
		t.Error("Delete of an existing session = false, want true")
	}
	if ok, _ := s.Exists(ctx, "chat-1"); ok {
		t.Error("Exists after delete = true, want false")
	}

	deleted, err = s.Delete(ctx, "chat-1")
	if err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if deleted {
		t.Error("Delete of a missing session = true, want false")
	}
}

func TestList(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ids, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("List of empty store = %v, want none", ids)
	}

	for _, id := range []string{"beta", "alpha", "gamma"} {
		if err := s.Save(ctx, id, map[string]parley.StateModule{"memory": memoryWith("x")}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
	}

	ids, err = s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 3 || ids[0] != "alpha" || ids[1] != "beta" || ids[2] != "gamma" {
		t.Errorf("List = %v, want sorted [alpha beta gamma]", ids)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestEmptyID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.Save(ctx, "", nil); err == nil {
		t.Error("Save with empty id should fail")
	}
	if err := s.Load(ctx, "", false, nil); err == nil {
		t.Error("Load with empty id should fail")
	}
	if _, err := s.Exists(ctx, ""); err == nil {
		t.Error("Exists with empty id should fail")
	}
	if _, err := s.Delete(ctx, ""); err == nil {
		t.Error("Delete with empty id should fail")
	}
}
