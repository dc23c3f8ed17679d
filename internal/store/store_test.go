package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"adnw/internal/macro"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "adnw.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// xorSealer is a reversible stand-in for the vault.
type xorSealer struct{ fail bool }

func (x xorSealer) Encrypt(p []byte) ([]byte, error) {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b ^ 0x5A
	}
	return out, nil
}

func (x xorSealer) Decrypt(p []byte) ([]byte, error) {
	if x.fail {
		return nil, errors.New("bad key")
	}
	return x.Encrypt(p)
}

func TestOpenCreatesDirectory(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "sub", "nested", "adnw.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	v, err := s.SchemaVersion()
	if err != nil {
		t.Fatalf("SchemaVersion failed: %v", err)
	}
	if v != LatestVersion() {
		t.Errorf("schema version = %d, want %d", v, LatestVersion())
	}
}

func TestPing(t *testing.T) {
	s := openTest(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	s.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping after Close should fail")
	}
}

func TestCloseNilDB(t *testing.T) {
	s := &Store{}
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil db should not error: %v", err)
	}
}

func TestReopenKeepsDataAndStartsNewSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adnw.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := s1.PutMacro(macro.Macro{Name: "hi", Text: "hallo"}); err != nil {
		t.Fatalf("PutMacro failed: %v", err)
	}
	first := s1.Session()
	s1.Close()

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer s2.Close()
	if s2.Session() == first {
		t.Error("session id reused across opens")
	}
	m, err := s2.GetMacro("hi")
	if err != nil {
		t.Fatalf("GetMacro failed: %v", err)
	}
	if m.Text != "hallo" {
		t.Errorf("text = %q, want hallo", m.Text)
	}
}

func TestMacroLifecycle(t *testing.T) {
	s := openTest(t)

	if err := s.PutMacro(macro.Macro{Name: "b", Text: "second"}); err != nil {
		t.Fatalf("PutMacro failed: %v", err)
	}
	if err := s.PutMacro(macro.Macro{Name: "a", Text: "first"}); err != nil {
		t.Fatalf("PutMacro failed: %v", err)
	}
	if err := s.PutMacro(macro.Macro{Name: "a", Text: "replaced"}); err != nil {
		t.Fatalf("PutMacro replace failed: %v", err)
	}

	list, err := s.ListMacros()
	if err != nil {
		t.Fatalf("ListMacros failed: %v", err)
	}
	if len(list) != 2 || list[0].Name != "a" || list[1].Name != "b" {
		t.Fatalf("ListMacros = %+v", list)
	}

	m, err := s.GetMacro("a")
	if err != nil || m.Text != "replaced" {
		t.Errorf("GetMacro(a) = %+v, %v", m, err)
	}

	if err := s.DeleteMacro("a"); err != nil {
		t.Fatalf("DeleteMacro failed: %v", err)
	}
	if _, err := s.GetMacro("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetMacro after delete: %v, want ErrNotFound", err)
	}
	if err := s.DeleteMacro("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteMacro: %v, want ErrNotFound", err)
	}
}

func TestPutMacroRejectsUntypeableText(t *testing.T) {
	s := openTest(t)
	err := s.PutMacro(macro.Macro{Name: "x", Text: "über"})
	if !errors.Is(err, macro.ErrUntypeable) {
		t.Errorf("PutMacro: %v, want ErrUntypeable", err)
	}
	if err := s.PutMacro(macro.Macro{Text: "a"}); err == nil {
		t.Error("PutMacro accepted empty name")
	}
}

func TestSealedMacros(t *testing.T) {
	s := openTest(t)
	s.SetSealer(xorSealer{})

	if err := s.PutMacro(macro.Macro{Name: "pw", Text: "secret"}); err != nil {
		t.Fatalf("PutMacro failed: %v", err)
	}

	var raw []byte
	if err := s.db.QueryRow("SELECT payload FROM macros WHERE name = 'pw'").Scan(&raw); err != nil {
		t.Fatalf("raw read failed: %v", err)
	}
	if bytes.Contains(raw, []byte("secret")) {
		t.Error("payload stored in the clear")
	}

	m, err := s.GetMacro("pw")
	if err != nil || m.Text != "secret" {
		t.Errorf("GetMacro = %+v, %v", m, err)
	}

	list, _ := s.ListMacros()
	if len(list) != 1 || !list[0].Sealed {
		t.Errorf("ListMacros = %+v, want one sealed macro", list)
	}

	s.SetSealer(nil)
	if _, err := s.GetMacro("pw"); !errors.Is(err, ErrSealed) {
		t.Errorf("GetMacro without sealer: %v, want ErrSealed", err)
	}

	s.SetSealer(xorSealer{fail: true})
	if _, err := s.GetMacro("pw"); err == nil {
		t.Error("GetMacro succeeded with a failing sealer")
	}
}

func TestSettings(t *testing.T) {
	s := openTest(t)

	if _, err := s.GetSetting(SettingUnlockFingerprint); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSetting on empty store: %v, want ErrNotFound", err)
	}
	if err := s.SetSetting(SettingUnlockFingerprint, "1234"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := s.SetSetting(SettingUnlockFingerprint, "abcd"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}
	v, err := s.GetSetting(SettingUnlockFingerprint)
	if err != nil || v != "abcd" {
		t.Errorf("GetSetting = %q, %v", v, err)
	}
}

func TestDiagnosticsJournal(t *testing.T) {
	s := openTest(t)

	if err := s.RecordDiagnostic("report_overflow", 3); err != nil {
		t.Fatalf("RecordDiagnostic failed: %v", err)
	}
	if err := s.RecordDiagnostic("layer_conflict", 1); err != nil {
		t.Fatalf("RecordDiagnostic failed: %v", err)
	}

	got, err := s.Diagnostics(10)
	if err != nil {
		t.Fatalf("Diagnostics failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Signal != "layer_conflict" || got[1].Count != 3 {
		t.Errorf("unexpected entries: %+v", got)
	}
	for _, d := range got {
		if d.Session != s.Session() {
			t.Errorf("entry session = %s, want %s", d.Session, s.Session())
		}
	}

	one, _ := s.Diagnostics(1)
	if len(one) != 1 {
		t.Errorf("limit ignored: %d entries", len(one))
	}
}

func TestRollback(t *testing.T) {
	s := openTest(t)

	if err := s.Rollback(); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	v, _ := s.SchemaVersion()
	if v != LatestVersion()-1 {
		t.Errorf("version after rollback = %d", v)
	}
	if err := s.RecordDiagnostic("x", 1); err == nil {
		t.Error("diagnostics table survived rollback")
	}
	if err := migrate(s.db); err != nil {
		t.Fatalf("re-migrate failed: %v", err)
	}
	v, _ = s.SchemaVersion()
	if v != LatestVersion() {
		t.Errorf("version after re-migrate = %d", v)
	}
}
