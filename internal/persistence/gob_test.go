package persistence

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveAndLoadGobRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.gob")
	saved := map[string]int{"quick": 2, "brown": 1}

	if err := SaveGob(path, saved); err != nil {
		t.Fatal(err)
	}

	loaded := make(map[string]int)
	if err := LoadGob(path, &loaded); err != nil {
		t.Fatal(err)
	}
	if len(loaded) != 2 || loaded["quick"] != 2 || loaded["brown"] != 1 {
		t.Errorf("loaded = %v, want %v", loaded, saved)
	}
}

func TestLoadGobMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.gob")

	var out map[string]int
	err := LoadGob(path, &out)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}
