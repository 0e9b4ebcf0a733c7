package profile

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/ebaybot/internal/browser/stealth"
	"github.com/xkilldash9x/ebaybot/internal/failure"
	"go.uber.org/zap/zaptest"
)

const testRoot = "/tmp/profiles"

func newTestProvisioner(t *testing.T, fsys afero.Fs, extPath string) *Provisioner {
	t.Helper()
	return NewProvisioner(Options{
		Fs:            fsys,
		Root:          testRoot,
		ExtensionPath: extPath,
		ExtensionName: "buster",
		Persona:       stealth.DefaultPersona,
	}, zaptest.NewLogger(t))
}

func seedExtensionDir(t *testing.T, fsys afero.Fs, dir string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, "manifest.json"), []byte(`{"name":"Buster"}`), 0o644))
	require.NoError(t, afero.WriteFile(fsys, filepath.Join(dir, "_locales", "en", "messages.json"), []byte(`{}`), 0o644))
}

func profileDirs(t *testing.T, fsys afero.Fs) []string {
	t.Helper()
	entries, err := afero.ReadDir(fsys, testRoot)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), DirPrefix) {
			dirs = append(dirs, e.Name())
		}
	}
	return dirs
}

func TestProvisionFromDirectory(t *testing.T) {
	fsys := afero.NewMemMapFs()
	seedExtensionDir(t, fsys, "/res/buster")

	prof, err := newTestProvisioner(t, fsys, "/res/buster").Provision()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(filepath.Base(prof.Dir), DirPrefix))
	assert.Equal(t, filepath.Join(prof.Dir, "extensions", "buster"), prof.ExtensionDir)

	manifest, err := afero.ReadFile(fsys, filepath.Join(prof.ExtensionDir, "manifest.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Buster"}`, string(manifest))
	exists, err := afero.Exists(fsys, filepath.Join(prof.ExtensionDir, "_locales", "en", "messages.json"))
	require.NoError(t, err)
	assert.True(t, exists, "nested files are copied")

	raw, err := afero.ReadFile(fsys, filepath.Join(prof.Dir, "Default", "Preferences"))
	require.NoError(t, err)
	var prefs map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &prefs))
	assert.Equal(t, "en-US,en", prefs["intl"].(map[string]interface{})["accept_languages"])
	assert.Equal(t, "disable_non_proxied_udp", prefs["webrtc"].(map[string]interface{})["ip_handling_policy"])
	settings := prefs["profile"].(map[string]interface{})["default_content_setting_values"].(map[string]interface{})
	assert.EqualValues(t, contentBlock, settings["geolocation"])

	assert.Equal(t, stealth.DefaultPersona, prof.Persona)

	require.NoError(t, prof.Remove())
	assert.Empty(t, profileDirs(t, fsys))
	assert.NoError(t, prof.Remove(), "remove is idempotent")
}

func TestProvisionFromZip(t *testing.T) {
	fsys := afero.NewMemMapFs()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("manifest.json")
	require.NoError(t, err)
	_, err = w.Write([]byte(`{"name":"Buster"}`))
	require.NoError(t, err)
	w, err = zw.Create("src/background.js")
	require.NoError(t, err)
	_, err = w.Write([]byte(`console.log(1)`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fsys, "/res/buster.zip", buf.Bytes(), 0o644))

	prof, err := newTestProvisioner(t, fsys, "/res/buster.zip").Provision()
	require.NoError(t, err)

	js, err := afero.ReadFile(fsys, filepath.Join(prof.ExtensionDir, "src", "background.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(js))
}

func TestProvisionMissingExtension(t *testing.T) {
	fsys := afero.NewMemMapFs()

	_, err := newTestProvisioner(t, fsys, "/res/buster").Provision()
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrDependencyNotFound))
	assert.Equal(t, "extension", failure.StepOf(err))

	rootExists, err := afero.DirExists(fsys, testRoot)
	require.NoError(t, err)
	assert.False(t, rootExists, "nothing is created before the extension check")
}

func TestProvisionUnsupportedExtension(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/res/buster.xpi", []byte("x"), 0o644))

	_, err := newTestProvisioner(t, fsys, "/res/buster.xpi").Provision()
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrDependencyNotFound))
}

func TestProvisionCleansUpOnFailure(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/res/buster.zip", []byte("not a zip"), 0o644))

	_, err := newTestProvisioner(t, fsys, "/res/buster.zip").Provision()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "install extension")
	assert.Empty(t, profileDirs(t, fsys), "the temp profile is removed")
}

func TestExtractZipRejectsTraversal(t *testing.T) {
	fsys := afero.NewMemMapFs()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err := zw.Create("../../evil.js")
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, afero.WriteFile(fsys, "/res/evil.zip", buf.Bytes(), 0o644))

	err = extractZip(fsys, "/res/evil.zip", "/out/ext")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestNewProvisionerDefaults(t *testing.T) {
	p := NewProvisioner(Options{ExtensionPath: "./resources/buster.zip"}, zaptest.NewLogger(t))
	assert.Equal(t, "buster", p.extensionName)
	assert.NotEmpty(t, p.root)
}
