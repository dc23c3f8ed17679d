package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adnw/internal/config"
	"adnw/internal/keyboard"
	"adnw/internal/layout"
	"adnw/internal/sim"
	"adnw/internal/store"
	"adnw/internal/vault"
)

type env struct {
	t      *testing.T
	dir    string
	config string
}

// newEnv writes a config that keeps every file under a temporary directory,
// sends reports to stdout and uses cheap vault parameters.
func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv(passphraseEnv, "")
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(dir, "adnw.db")
	cfg.Logging.FilePath = filepath.Join(dir, "adnw.log")
	cfg.Transport.Device = "-"
	cfg.Vault = vault.Params{Time: 1, Memory: 64, Threads: 1}
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, config.Save(cfg, path))
	return &env{t: t, dir: dir, config: path}
}

func (e *env) exec(stdin string, args ...string) (string, error) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append([]string{"--config", e.config}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	e.t.Logf("adnw %s\n%s", strings.Join(args, " "), errOut.String())
	return out.String(), err
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"version"})
	root.SetOut(&out)
	require.NoError(t, root.Execute())
	assert.Equal(t, "adnw dev (config schema v1)\n", out.String())
}

func TestDescribe(t *testing.T) {
	var r keyboard.Report
	assert.Equal(t, "00 00 00 00 00 00 00 00  (release)", describe(r))

	r.Mods = layout.ModLShift | layout.ModRAlt
	r.Keys[0] = layout.Letter('h')
	r.Keys[1] = layout.UsageSpace
	assert.Equal(t, "42 00 0b 2c 00 00 00 00  L_SHIFT R_ALT h SPACE", describe(r))
}

func TestSimulateText(t *testing.T) {
	e := newEnv(t)
	out, err := e.exec("", "simulate", "--text", "Hi")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"00 00 00 00 00 00 00 00  (release)",
		"02 00 0b 00 00 00 00 00  L_SHIFT h",
		"00 00 00 00 00 00 00 00  (release)",
		"00 00 0c 00 00 00 00 00  i",
		"00 00 00 00 00 00 00 00  (release)",
	}, lines(out))
}

func TestSimulateChatterMatchesClean(t *testing.T) {
	e := newEnv(t)
	clean, err := e.exec("", "simulate", "--text", "ei")
	require.NoError(t, err)
	bouncy, err := e.exec("", "simulate", "--text", "ei", "--bounce", "3")
	require.NoError(t, err)
	assert.Equal(t, clean, bouncy)
}

func TestSimulateFromInput(t *testing.T) {
	e := newEnv(t)
	out, err := e.exec("h€i\x04ignored", "simulate")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"00 00 00 00 00 00 00 00  (release)",
		"00 00 0b 00 00 00 00 00  h",
		"00 00 00 00 00 00 00 00  (release)",
		"'€': no key",
		"00 00 0c 00 00 00 00 00  i",
		"00 00 00 00 00 00 00 00  (release)",
	}, lines(out))
}

func TestSimulateUnknownCharacter(t *testing.T) {
	e := newEnv(t)
	_, err := e.exec("", "simulate", "--text", "€")
	assert.ErrorIs(t, err, sim.ErrNoKey)
}

func TestLayoutCheck(t *testing.T) {
	e := newEnv(t)

	good := filepath.Join(e.dir, "adnw.yaml")
	require.NoError(t, os.WriteFile(good, layout.DefaultSource(), 0o600))
	out, err := e.exec("", "layout", "check", good)
	require.NoError(t, err)
	assert.Contains(t, out, `ok ("adnw", 8x6, 6 layers)`)
	assert.Contains(t, out, "  4 mouse\n")

	tiny := filepath.Join(e.dir, "tiny.yaml")
	require.NoError(t, os.WriteFile(tiny, []byte(`name: tiny
rows: 1
cols: 2
layers:
  - name: base
    keys:
      - [a, b]
`), 0o600))
	_, err = e.exec("", "layout", "check", tiny)
	assert.ErrorContains(t, err, "layout is 1x2 but the matrix is 8x6")

	bad := filepath.Join(e.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: bad\nrows: 1\ncols: 1\nlayers:\n  - name: base\n    keys:\n      - [NOPE]\n"), 0o600))
	_, err = e.exec("", "layout", "check", bad)
	assert.Error(t, err)
}

func TestLayoutDump(t *testing.T) {
	e := newEnv(t)

	out, err := e.exec("", "layout", "dump", "--format", "json")
	require.NoError(t, err)
	var doc layout.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "adnw", doc.Name)
	assert.Len(t, doc.Layers, 6)

	// A dump loads back into the same table.
	path := filepath.Join(e.dir, "dumped.toml")
	out, err = e.exec("", "layout", "dump", "--format", "toml")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(out), 0o600))
	lay, err := layout.Load(path)
	require.NoError(t, err)
	assert.Equal(t, layout.Default().Document(), lay.Document())

	_, err = e.exec("", "layout", "dump", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestMacroLifecycle(t *testing.T) {
	e := newEnv(t)

	out, err := e.exec("", "macro", "list")
	require.NoError(t, err)
	assert.Equal(t, "no macros\n", out)

	out, err = e.exec("", "macro", "set", "greet", "hi", "you")
	require.NoError(t, err)
	assert.Equal(t, "stored greet (6 characters)\n", out)

	out, err = e.exec("", "macro", "ls")
	require.NoError(t, err)
	assert.Contains(t, out, "greet")
	assert.Contains(t, out, "false")

	out, err = e.exec("", "macro", "play", "greet")
	require.NoError(t, err)
	raw := []byte(out)
	require.Len(t, raw, 2*6*keyboard.ReportSize)
	assert.Equal(t, []byte{0, 0, 0x0b, 0, 0, 0, 0, 0}, raw[:8])
	assert.Equal(t, make([]byte, 8), raw[8:16])
	assert.Equal(t, []byte{0, 0, 0x2c, 0, 0, 0, 0, 0}, raw[32:40])

	out, err = e.exec("", "macro", "rm", "greet")
	require.NoError(t, err)
	assert.Equal(t, "deleted greet\n", out)

	_, err = e.exec("", "macro", "rm", "greet")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = e.exec("", "macro", "set", "euro", "€")
	assert.Error(t, err)
}

func TestSealedMacro(t *testing.T) {
	e := newEnv(t)
	t.Setenv(passphraseEnv, "correct horse")

	_, err := e.exec("", "macro", "set", "--seal", "pin", "1234")
	require.NoError(t, err)
	out, err := e.exec("", "macro", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "true")

	out, err = e.exec("", "macro", "play", "pin")
	require.NoError(t, err)
	assert.Len(t, out, 2*4*keyboard.ReportSize)

	t.Setenv(passphraseEnv, "")
	_, err = e.exec("wrong\n", "macro", "play", "pin")
	assert.ErrorIs(t, err, vault.ErrWrongPassphrase)
}

func TestUnlock(t *testing.T) {
	e := newEnv(t)

	out, err := e.exec("secret words\n", "unlock")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "vault created, fingerprint "))
	fp := strings.TrimPrefix(out, "vault created, fingerprint ")

	out, err = e.exec("secret words\n", "unlock")
	require.NoError(t, err)
	assert.Equal(t, "vault unlocked, fingerprint "+fp, out)

	_, err = e.exec("other words\n", "unlock")
	assert.ErrorIs(t, err, vault.ErrWrongPassphrase)

	_, err = e.exec("", "unlock")
	assert.ErrorContains(t, err, "read passphrase")
}

func TestTabula(t *testing.T) {
	e := newEnv(t)
	t.Setenv(passphraseEnv, "tabula test")

	first, err := e.exec("", "tabula", "A", "3", "8")
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(first), 8)

	again, err := e.exec("", "tabula", "A", "3", "8")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := e.exec("", "tabula", "B", "3", "8")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)

	_, err = e.exec("", "tabula", "AB", "0", "8")
	assert.ErrorContains(t, err, "single character")
	_, err = e.exec("", "tabula", "A", "x", "8")
	assert.ErrorContains(t, err, "column")
}

func TestConfigCommands(t *testing.T) {
	e := newEnv(t)

	out, err := e.exec("", "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration ok")

	path := filepath.Join(e.dir, "new", "config.yaml")
	out, err = e.exec("", "config", "init", path)
	require.NoError(t, err)
	assert.Equal(t, "wrote "+path+"\n", out)
	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Version, loaded.Version)

	_, err = e.exec("", "config", "init", path)
	assert.ErrorContains(t, err, "--force")
	_, err = e.exec("", "config", "init", "--force", path)
	assert.NoError(t, err)

	out, err = e.exec("", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `device = "-"`)

	t.Setenv("ADNW_DEBOUNCE_BITS", "9")
	out, err = e.exec("", "config", "check")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, out, "error: matrix.debounce_bits")

	_, err = e.exec("", "simulate", "--text", "a")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunTypesFromInput(t *testing.T) {
	if testing.Short() {
		t.Skip("runs in real time")
	}
	e := newEnv(t)

	out, err := e.exec("hi", "run", "--stdin")
	require.NoError(t, err)
	raw := []byte(out)
	require.Zero(t, len(raw)%keyboard.ReportSize)

	var got []keyboard.Report
	for i := 0; i < len(raw); i += keyboard.ReportSize {
		got = append(got, keyboard.ParseReport([keyboard.ReportSize]byte(raw[i:i+keyboard.ReportSize])))
	}
	h := keyboard.Report{Keys: [keyboard.MaxReportKeys]layout.Usage{layout.Letter('h')}}
	i := keyboard.Report{Keys: [keyboard.MaxReportKeys]layout.Usage{layout.Letter('i')}}
	assert.Equal(t, []keyboard.Report{{}, h, {}, i, {}}, got)

	out, err = e.exec("", "diag")
	require.NoError(t, err)
	assert.Contains(t, out, "no diagnostics recorded")
}

func TestDiagShowsJournal(t *testing.T) {
	e := newEnv(t)
	c := &cli{configPath: e.config}
	root := newRootCmd()
	require.NoError(t, c.setup(root, nil))

	b, err := newBoard(c.cfg, layout.Default(), c.log.Slog())
	require.NoError(t, err)
	b.metrics.Observe(keyboard.SignalLayerConflict)
	b.metrics.Observe(keyboard.SignalLayerConflict | keyboard.SignalReportOverflow)

	st, err := c.openStore()
	require.NoError(t, err)
	c.flushDiagnostics(st, b)
	require.NoError(t, st.Close())

	out, err := e.exec("", "diag")
	require.NoError(t, err)
	assert.Contains(t, out, "layer_conflict")
	assert.Contains(t, out, "report_overflow")
	assert.NotContains(t, out, "active_overflow")
}
