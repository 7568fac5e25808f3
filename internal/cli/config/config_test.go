package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sumfields/sumfields/internal/params"
	"github.com/sumfields/sumfields/internal/registry"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	t.Cleanup(func() { os.Chdir(oldWd) })
	return tmpDir
}

func TestLoad(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error loading defaults, got %v", err)
	}

	if cfg.Server.Port != 3000 {
		t.Errorf("expected default port 3000, got %d", cfg.Server.Port)
	}
	if cfg.Server.Host != "localhost" {
		t.Errorf("expected default host 'localhost', got %s", cfg.Server.Host)
	}

	assert.Equal(t, ViaTriggers, cfg.Sumfields.DataUpdateMethod)
	assert.True(t, cfg.Sumfields.UsesTriggers())
	assert.Equal(t, "01-01", cfg.Sumfields.FiscalYearStart)
	assert.Equal(t, "civicrm_value_summary_fields", cfg.Sumfields.SummaryTable)
	assert.Equal(t, time.Hour, cfg.Sumfields.CronInterval)
	assert.Equal(t, []string{"CiviContribute", "CiviMember", "CiviEvent"}, cfg.Sumfields.EnabledComponents)
	assert.Equal(t, "sumfields:", cfg.Redis.Prefix)
	assert.False(t, cfg.Auth.Enabled())
}

func TestLoadWithConfigFile(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATABASE_URL", "")

	configContent := `
server:
  port: 8080
  host: 0.0.0.0
  api_prefix: /civicrm
database:
  url: civi:secret@tcp(localhost:3306)/civicrm
redis:
  addr: localhost:6379
auth:
  jwt_secret: s3cret
sumfields:
  active_fields: [contribution_total_lifetime, event_total]
  financial_type_ids: [1, 3]
  event_type_ids: [2]
  fiscal_year_start: "07-01"
  data_update_method: via_cron
  cron_interval: 15m
  locale: fr_FR
`
	require.NoError(t, os.WriteFile("sumfields.yml", []byte(configContent), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "/civicrm", cfg.Server.APIPrefix)
	assert.Equal(t, "civi:secret@tcp(localhost:3306)/civicrm", cfg.Database.URL)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.True(t, cfg.Auth.Enabled())

	s := cfg.Sumfields
	assert.Equal(t, []string{"contribution_total_lifetime", "event_total"}, s.ActiveFields)
	assert.Equal(t, []int{1, 3}, s.FinancialTypeIDs)
	assert.Equal(t, 15*time.Minute, s.CronInterval)
	assert.False(t, s.UsesTriggers())

	set, err := s.ParamSet()
	require.NoError(t, err)
	assert.Equal(t, params.MonthDay{Month: time.July, Day: 1}, set.FiscalYearStart)
	assert.Equal(t, []int{2}, set.EventTypeIDs)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DATABASE_URL", "civi@tcp(env:3306)/civicrm")
	t.Setenv("SUMFIELDS_SERVER_PORT", "9090")
	t.Setenv("SUMFIELDS_SUMFIELDS_LOCALE", "de_DE")

	require.NoError(t, os.WriteFile("sumfields.yml", []byte("database:\n  url: civi@tcp(file:3306)/civicrm\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "civi@tcp(env:3306)/civicrm", cfg.Database.URL)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "de_DE", cfg.Sumfields.Locale)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 4000\n"), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Server.Port)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"prefix without slash", "server:\n  api_prefix: api\n", "must start with '/'"},
		{"prefix with trailing slash", "server:\n  api_prefix: /api/\n", "must not end with '/'"},
		{"bad method", "sumfields:\n  data_update_method: sometimes\n", "data_update_method"},
		{"zero interval", "sumfields:\n  data_update_method: via_cron\n  cron_interval: 0s\n", "cron_interval"},
		{"bad fiscal year", "sumfields:\n  fiscal_year_start: \"13-01\"\n", "fiscal_year_start"},
		{"bad port", "server:\n  port: 70000\n", "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdirTemp(t)
			require.NoError(t, os.WriteFile("sumfields.yml", []byte(tt.content), 0644))

			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_FindsConfigInParent(t *testing.T) {
	tmpDir := chdirTemp(t)
	t.Setenv("DATABASE_URL", "")

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "sumfields.yml"), []byte("database:\n  url: civi@tcp(config:3306)/testdb\n"), 0644))
	subDir := filepath.Join(tmpDir, "deploy", "prod")
	require.NoError(t, os.MkdirAll(subDir, 0755))
	require.NoError(t, os.Chdir(subDir))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "civi@tcp(config:3306)/testdb", cfg.Database.URL)
}

func TestFindConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	oldWd, _ := os.Getwd()
	defer os.Chdir(oldWd)

	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "sumfields.yml"), []byte(""), 0644))
	subDir := filepath.Join(tmpDir, "deploy", "prod")
	require.NoError(t, os.MkdirAll(subDir, 0755))
	require.NoError(t, os.Chdir(subDir))

	path, err := FindConfigFile()
	require.NoError(t, err)

	// On macOS, /tmp is symlinked to /private/tmp, so resolve both paths
	resolved, _ := filepath.EvalSymlinks(path)
	want, _ := filepath.EvalSymlinks(filepath.Join(tmpDir, "sumfields.yml"))
	assert.Equal(t, want, resolved)
}

func TestSumfieldsConfig_Registry(t *testing.T) {
	s := SumfieldsConfig{
		ActiveFields:      []string{"contribution_total_lifetime", "event_last_attended_name", "contribution_date_last_membership_payment"},
		EnabledComponents: []string{"CiviContribute", "CiviEvent"},
		Locale:            "fr_FR",
	}

	reg, err := s.Registry()
	require.NoError(t, err)

	names := []string{}
	for _, f := range reg.Fields() {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"contribution_total_lifetime", "event_last_attended_name"}, names)

	f, _ := reg.Field("event_last_attended_name")
	assert.Contains(t, f.TriggerSQL, "civicrm_event_fr_FR")
}

func TestSumfieldsConfig_RegistryWithDefinitionsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
fields:
  contribution_count_lifetime:
    label: 'Number of contributions'
    data_type: Int
    html_type: Text
    weight: 99
    trigger_sql: '(SELECT COUNT(id) FROM civicrm_contribution WHERE contact_id = NEW.contact_id AND financial_type_id IN (%financial_type_ids))'
    trigger_table: civicrm_contribution
    optgroup: fundraising
`), 0644))

	s := SumfieldsConfig{DefinitionsFile: path}
	reg, err := s.Registry()
	require.NoError(t, err)

	_, ok := reg.Field("contribution_count_lifetime")
	assert.True(t, ok)
	assert.Equal(t, registry.MustLoad().Len()+1, reg.Len())

	s.ActiveFields = []string{"nope"}
	_, err = s.Registry()
	assert.ErrorIs(t, err, registry.ErrUnknownField)
}

func TestSumfieldsConfig_AllDefinitionsExtensionRatio(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
fields:
  event_attended_of_noshow:
    label: 'Attended per no-show'
    data_type: Int
    html_type: Text
    weight: 80
    ratio:
      numerator: event_attended
      denominator: event_noshow
    trigger_table: civicrm_participant
    optgroup: event_standard
`), 0644))

	reg, err := SumfieldsConfig{DefinitionsFile: path}.AllDefinitions()
	require.NoError(t, err)

	f, ok := reg.Field("event_attended_of_noshow")
	require.True(t, ok)
	assert.Contains(t, f.TriggerSQL, "FORMAT(IFNULL(")
}
