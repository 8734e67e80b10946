package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tartampluch/go-hebrew-birthday/internal/config"
	"github.com/tartampluch/go-hebrew-birthday/internal/store"
)

// fakeHebcal answers g2h with "19 Adar <gy+3760>" and h2g with March 10th of hy-3760.
func fakeHebcal(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set(config.HeaderContentType, config.MimeJSON)
		switch {
		case q.Get(config.ParamG2H) == config.ValueOne:
			gy, _ := strconv.Atoi(q.Get(config.ParamGregYear))
			hy := gy + 3760
			_ = json.NewEncoder(w).Encode(map[string]any{
				"hebrew": "19 Adar " + strconv.Itoa(hy), "hy": hy, "hm": "Adar", "hd": 19,
			})
		case q.Get(config.ParamH2G) == config.ValueOne:
			hy, _ := strconv.Atoi(q.Get(config.ParamHebYear))
			_ = json.NewEncoder(w).Encode(map[string]any{"gy": hy - 3760, "gm": 3, "gd": 10})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// testEnv writes a settings file pointing at a temp database and the fake upstream.
func testEnv(t *testing.T) (configPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "cache"))
	t.Setenv("HOME", dir)

	settings := config.DefaultSettings()
	settings.Database = filepath.Join(dir, "hebday.db")
	settings.Hebcal.BaseURL = fakeHebcal(t).URL
	settings.Hebcal.MaxTries = 1

	configPath = filepath.Join(dir, "settings.yaml")
	require.NoError(t, config.Save(configPath, settings))
	return configPath, settings.Database
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := &cli{out: &out}
	defer c.closeLog()

	root := c.newRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, config.AppName+" version "+config.Version))
}

func TestImportRequiresTenant(t *testing.T) {
	configPath, _ := testEnv(t)
	_, err := execute(t, "import", "missing.vcf", "--config", configPath)
	assert.EqualError(t, err, config.ErrTenantRequired)
}

func TestImportSyncSweepBackfill(t *testing.T) {
	configPath, dbPath := testEnv(t)

	vcf := filepath.Join(t.TempDir(), "contacts.vcf")
	require.NoError(t, os.WriteFile(vcf, []byte(
		"BEGIN:VCARD\r\nVERSION:3.0\r\nN:Levi;Noa;;;\r\nBDAY:2020-03-15\r\nEND:VCARD\r\n"+
			"BEGIN:VCARD\r\nVERSION:3.0\r\nFN:No Year\r\nBDAY:--0415\r\nEND:VCARD\r\n",
	), config.FilePermUserRW))

	out, err := execute(t, "import", vcf, "--tenant", "tenant-a", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 of 2 card(s) (1 skipped, 0 failed)")

	// The write trigger computed the Hebrew data during the import.
	db, err := store.Open(dbPath)
	require.NoError(t, err)
	records, err := store.NewRecords(db.DB()).ListByTenant(context.Background(), "tenant-a")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "Noa", rec.FirstName)
	require.NotNil(t, rec.Derived.Hebrew)
	assert.Equal(t, 5780, rec.Derived.Hebrew.Year)
	require.NotNil(t, rec.Derived.NextUpcoming)
	today := time.Now().UTC().Truncate(24 * time.Hour)
	assert.False(t, rec.Derived.NextUpcoming.Date.Before(today.AddDate(0, 0, -1)))

	out, err = execute(t, "sync", rec.ID, "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Record "+rec.ID+": updated")

	out, err = execute(t, "sweep", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Sweep complete: 0 record(s) updated")

	out, err = execute(t, "backfill", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Backfill complete: 0 record(s) updated")
}

func TestSyncUnknownRecord(t *testing.T) {
	configPath, _ := testEnv(t)
	_, err := execute(t, "sync", "nope", "--config", configPath)
	assert.Error(t, err)
}

func TestServeRequiresSecret(t *testing.T) {
	configPath, _ := testEnv(t)
	t.Setenv(config.EnvAuthSecret, "")

	_, err := execute(t, "serve", "--config", configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), config.ErrSecretMissing)
}
