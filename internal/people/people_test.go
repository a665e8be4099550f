package people

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "people.json", `{
	"Alice": {"age": 30},
	"Bob": {"age": "41", "job": "Engineer", "location": "Hanoi", "E-mail": "bob@example.com"},
	"Carol": {"email": "carol@example.com", "job": ""}
}`)

	dir, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	alice, ok := dir.Lookup("Alice")
	if !ok {
		t.Fatal("Alice not found")
	}
	if alice.Age != "30" {
		t.Errorf("Expected age 30, got %q", alice.Age)
	}
	if alice.Job != Unknown || alice.Location != Unknown || alice.Email != Unknown {
		t.Errorf("Missing fields should default to Unknown, got %+v", alice)
	}

	bob, _ := dir.Lookup("Bob")
	want := Record{Age: "41", Job: "Engineer", Location: "Hanoi", Email: "bob@example.com"}
	if bob != want {
		t.Errorf("Expected %+v, got %+v", want, bob)
	}

	carol, _ := dir.Lookup("Carol")
	if carol.Email != "carol@example.com" {
		t.Errorf("Expected lowercase email key to be accepted, got %q", carol.Email)
	}
	if carol.Job != Unknown {
		t.Errorf("Expected empty job to read as Unknown, got %q", carol.Job)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "people.yaml", `
Alice:
  age: 30
  job: Pilot
  E-mail: alice@example.com
`)
	dir, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	alice, _ := dir.Lookup("Alice")
	if alice.Age != "30" || alice.Job != "Pilot" || alice.Email != "alice@example.com" || alice.Location != Unknown {
		t.Errorf("Unexpected record %+v", alice)
	}
}

func TestLookupMissingIdentity(t *testing.T) {
	rec, ok := Directory{}.Lookup("Nobody")
	if ok {
		t.Error("Expected ok=false")
	}
	if rec != UnknownRecord() {
		t.Errorf("Expected all-Unknown record, got %+v", rec)
	}
}

func TestLoadOrEmpty(t *testing.T) {
	dir, found, err := LoadOrEmpty(filepath.Join(t.TempDir(), "people.json"))
	if err != nil || found || len(dir) != 0 {
		t.Errorf("LoadOrEmpty(missing) = %v, %v, %v", dir, found, err)
	}

	bad := writeFile(t, "people.json", `{"Alice": [1, 2]}`)
	if _, _, err := LoadOrEmpty(bad); err == nil {
		t.Error("Expected parse error for malformed file")
	}
}
