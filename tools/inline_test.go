package tools

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInline(t *testing.T) {
	input := `
I like %inline("tacos"), and
I also like %inline("queso").
Both are delicious.
`
	want := `
I like TACOS, and
I also like QUESO.
Both are delicious.
`

	find := func(name string) ([]byte, error) {
		return []byte(strings.ToUpper(name)), nil
	}

	got, err := Inline([]byte(input), find)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != want {
		t.Fatalf("got %s", got)
	}
}

func TestReadFileWithInlines(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "menu.txt"), []byte("tacos, chips"), 0644); err != nil {
		t.Fatal(err)
	}
	main := filepath.Join(dir, "main.txt")
	if err := os.WriteFile(main, []byte(`today: %inline("menu.txt")`), 0644); err != nil {
		t.Fatal(err)
	}

	got, err := ReadFileWithInlines(main)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "today: tacos, chips" {
		t.Fatalf("got %s", got)
	}
}
