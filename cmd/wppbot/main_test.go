package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadListOptions_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
buttonText: Options
description: Pick one
title: Menu
sections:
  - title: Drinks
    rows:
      - rowId: coffee
        title: Coffee
        description: Hot
      - rowId: tea
        title: Tea
`), 0o644))

	opts, err := loadListOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "Options", opts.ButtonText)
	assert.Equal(t, "Menu", opts.Title)
	require.Len(t, opts.Sections, 1)
	require.Len(t, opts.Sections[0].Rows, 2)
	assert.Equal(t, "coffee", opts.Sections[0].Rows[0].RowID)
	assert.Equal(t, "Hot", opts.Sections[0].Rows[0].Description)
}

func TestLoadListOptions_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "menu.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"buttonText":"Go","description":"d","sections":[{"title":"s","rows":[{"rowId":"1","title":"one"}]}]}`), 0o644))

	opts, err := loadListOptions(path)
	require.NoError(t, err)
	assert.Equal(t, "one", opts.Sections[0].Rows[0].Title)
}

func TestLoadListOptions_Invalid(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"nobutton.yaml":  "description: x\nsections: [{title: s, rows: [{rowId: '1', title: a}]}]\n",
		"nosection.yaml": "buttonText: b\n",
		"norows.yaml":    "buttonText: b\nsections: [{title: s}]\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := loadListOptions(path)
		assert.Error(t, err, name)
	}
	_, err := loadListOptions(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestParseOptions(t *testing.T) {
	opts, err := parseOptions([]string{"linkPreview=true", "quotedMsg=false_1@c.us_X", "duration=30", "empty="})
	require.NoError(t, err)
	assert.Equal(t, true, opts["linkPreview"])
	assert.Equal(t, "false_1@c.us_X", opts["quotedMsg"])
	assert.Equal(t, float64(30), opts["duration"])
	assert.Equal(t, "", opts["empty"])

	_, err = parseOptions([]string{"novalue"})
	assert.Error(t, err)
	_, err = parseOptions([]string{"=x"})
	assert.Error(t, err)
}

func TestBackupRestore_RoundTrip(t *testing.T) {
	src := t.TempDir()
	dbPath := filepath.Join(src, "journal.db")
	cfgPath := filepath.Join(src, "config.yaml")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite"), 0o644))
	require.NoError(t, os.WriteFile(dbPath+"-wal", []byte("wal"), 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte("general:\n  session: x\n"), 0o644))

	files := backupFiles(dbPath, cfgPath)
	assert.Len(t, files, 3)

	archive := filepath.Join(t.TempDir(), "b.tar.gz")
	require.NoError(t, createTarGz(archive, files))

	dst := t.TempDir()
	newDB := filepath.Join(dst, "data", "journal.db")
	newCfg := filepath.Join(dst, "config.yaml")
	restored, err := extractTarGz(archive, newDB, newCfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{newDB, newDB + "-wal", newCfg}, restored)

	data, err := os.ReadFile(newCfg)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "session: x"))
	data, err = os.ReadFile(newDB + "-wal")
	require.NoError(t, err)
	assert.Equal(t, "wal", string(data))
}

func TestExtractTarGz_ConfigFormatMismatch(t *testing.T) {
	src := t.TempDir()
	dbPath := filepath.Join(src, "journal.db")
	cfgPath := filepath.Join(src, "config.yaml")
	require.NoError(t, os.WriteFile(dbPath, []byte("sqlite"), 0o644))
	require.NoError(t, os.WriteFile(cfgPath, []byte("general:\n  session: x\n"), 0o644))

	archive := filepath.Join(t.TempDir(), "b.tar.gz")
	require.NoError(t, createTarGz(archive, backupFiles(dbPath, cfgPath)))

	dst := t.TempDir()
	newDB := filepath.Join(dst, "journal.db")
	newCfg := filepath.Join(dst, "config.json")
	_, err := extractTarGz(archive, newDB, newCfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config.yaml")
	assert.NoFileExists(t, newCfg)
	assert.NoFileExists(t, newDB, "nothing is written on mismatch")

	// .yml and .yaml are the same format
	ymlCfg := filepath.Join(dst, "config.yml")
	restored, err := extractTarGz(archive, newDB, ymlCfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{newDB, ymlCfg}, restored)
}

func TestExtractTarGz_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("plain"), 0o644))
	_, err := extractTarGz(path, "a.db", "config.json")
	assert.Error(t, err)
}

func TestServiceUnitRender(t *testing.T) {
	u := serviceUnit{Exec: "/usr/local/bin/wppbot", Config: "/etc/wppbot.yaml", Session: "sales"}
	unit := u.render(systemdTemplate)
	assert.Contains(t, unit, "ExecStart=/usr/local/bin/wppbot serve --config /etc/wppbot.yaml --session sales")
	assert.Contains(t, unit, "(sales)")
	assert.Equal(t, "wppbot-sales.service", systemdName("sales"))

	plist := u.render(launchdTemplate)
	assert.Contains(t, plist, "<string>com.wppbot.sales</string>")
	assert.NotContains(t, plist, "{{")
}

func TestHumanSize(t *testing.T) {
	assert.Equal(t, "512 B", humanSize(512))
	assert.Equal(t, "1.5 KB", humanSize(1536))
	assert.Equal(t, "2.0 MB", humanSize(2<<20))
}

func TestIsURL(t *testing.T) {
	assert.True(t, isURL("https://example.com/wa.js"))
	assert.True(t, isURL("http://localhost/wa.js"))
	assert.False(t, isURL("/opt/wa.js"))
	assert.False(t, isURL("http:/"))
}
