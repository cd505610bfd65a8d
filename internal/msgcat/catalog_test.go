package msgcat

import (
    "os"
    "path/filepath"
    "testing"
)

func TestEmbeddedMessagesRender(t *testing.T) {
    c := Default()
    got, err := c.Render("result.checkmate", map[string]string{"Winner": "bob"})
    if err != nil { t.Fatalf("Render: %v", err) }
    if got != "Checkmate! bob wins!" { t.Fatalf("got %q", got) }
    if s := c.RenderOr("system.seat_disconnected", map[string]string{"Name": "bob"}, "x"); s != "bob disconnected." { t.Fatalf("got %q", s) }
}

func TestMissingFieldFallsBack(t *testing.T) {
    c := Default()
    if _, err := c.Render("result.checkmate", map[string]string{}); err == nil { t.Fatalf("expected missing key error") }
    if s := c.RenderOr("result.checkmate", map[string]string{}, "fallback"); s != "fallback" { t.Fatalf("got %q", s) }
    if s := c.RenderOr("no.such.key", nil, "fallback"); s != "fallback" { t.Fatalf("got %q", s) }
}

func TestOverrideDirectory(t *testing.T) {
    dir := t.TempDir()
    if err := os.WriteFile(filepath.Join(dir, "ko.yaml"), []byte("system:\n  game_reset: \"게임이 초기화되었습니다.\"\n"), 0o644); err != nil { t.Fatal(err) }
    c, err := New(dir)
    if err != nil { t.Fatalf("New: %v", err) }
    if s, _ := c.Render("system.game_reset", nil); s != "게임이 초기화되었습니다." { t.Fatalf("override not applied: %q", s) }
    if !c.Has("system.seat_disconnected") { t.Fatalf("embedded keys lost") }
}

func TestDuplicateOverrideKeysRejected(t *testing.T) {
    dir := t.TempDir()
    body := []byte("system:\n  game_reset: \"a\"\n")
    _ = os.WriteFile(filepath.Join(dir, "a.yaml"), body, 0o644)
    _ = os.WriteFile(filepath.Join(dir, "b.yml"), body, 0o644)
    if _, err := New(dir); err == nil { t.Fatalf("expected duplicate key error") }
}
