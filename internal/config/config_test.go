package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfig_Explicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	os.WriteFile(path, []byte("socket:\n  path: /tmp/notifd.sock\n"), 0600)

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q) error: %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfig_ExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/notifd.yaml")
	if err == nil {
		t.Fatal("FindConfig with missing explicit path should error")
	}
}

func TestFindConfig_SearchPath(t *testing.T) {
	dir := t.TempDir()
	orig := searchPathsFunc
	searchPathsFunc = func() []string {
		return []string{filepath.Join(dir, "notifd.yaml")}
	}
	defer func() { searchPathsFunc = orig }()

	_, err := FindConfig("")
	if err == nil {
		t.Fatal("FindConfig(\"\") with no config files should error")
	}
}

func TestFindConfig_CWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifd.yaml")
	os.WriteFile(path, []byte("log_level: debug\n"), 0600)

	orig, _ := os.Getwd()
	os.Chdir(dir)
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\") error: %v", err)
	}
	if got != "notifd.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "notifd.yaml")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifd.yaml")
	os.WriteFile(path, []byte("mqtt:\n  enabled: true\n  broker_url: tcp://localhost:1883\n  password: ${NOTIFD_TEST_PASSWORD}\n"), 0600)
	os.Setenv("NOTIFD_TEST_PASSWORD", "secret123")
	defer os.Unsetenv("NOTIFD_TEST_PASSWORD")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.MQTT.Password != "secret123" {
		t.Errorf("password = %q, want %q", cfg.MQTT.Password, "secret123")
	}
}

func TestLoad_SocketDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifd.yaml")
	os.WriteFile(path, []byte("log_level: info\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Socket.Path == "" {
		t.Error("expected default socket.path to be resolved from $HOME")
	}
}

func TestLoad_SystemWideSocket(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notifd.yaml")
	os.WriteFile(path, []byte("socket:\n  system_wide: true\n"), 0600)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Socket.Path != "/var/run/notifd/notifd.sock" {
		t.Errorf("socket.path = %q, want the system-wide default", cfg.Socket.Path)
	}
}

func TestValidate_MQTTEnabledMissingBroker(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Enabled = true

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for missing mqtt.broker_url")
	}
}

func TestValidate_MQTTDisabledSkipsValidation(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Enabled = false

	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mqtt should skip validation, got: %v", err)
	}
}

func TestApplyDefaults_RotationCheckInterval(t *testing.T) {
	cfg := Default()
	if cfg.Rotation.CheckPendingInterval.Seconds != 5 {
		t.Errorf("expected default check_pending_interval 5s, got %v", cfg.Rotation.CheckPendingInterval.Seconds)
	}
}

func TestApplyDefaults_AuditDBPath(t *testing.T) {
	cfg := Default()
	cfg.Audit.Enabled = true
	cfg.applyDefaults()

	if cfg.Audit.DBPath != "./notifd-audit.db" {
		t.Errorf("expected default audit db_path, got %q", cfg.Audit.DBPath)
	}
}

func TestApplyDefaults_SessionThresholds(t *testing.T) {
	cfg := &Config{Rotation: RotationConfig{Sessions: []SessionConfig{{ID: "sess1"}}}}
	cfg.applyDefaults()

	sess := cfg.Rotation.Sessions[0]
	if sess.ConsumedThresholdBytes != defaultConsumedThresholdBytes {
		t.Errorf("consumed_threshold_bytes = %d, want default %d", sess.ConsumedThresholdBytes, defaultConsumedThresholdBytes)
	}
	if sess.RotateSizeBytes != sess.ConsumedThresholdBytes {
		t.Errorf("rotate_size_bytes = %d, want it to default to consumed_threshold_bytes (%d)", sess.RotateSizeBytes, sess.ConsumedThresholdBytes)
	}
}

func TestApplyDefaults_SessionExplicitValuesPreserved(t *testing.T) {
	cfg := &Config{Rotation: RotationConfig{Sessions: []SessionConfig{
		{ID: "sess1", ConsumedThresholdBytes: 1000, RotateSizeBytes: 2000},
	}}}
	cfg.applyDefaults()

	sess := cfg.Rotation.Sessions[0]
	if sess.ConsumedThresholdBytes != 1000 || sess.RotateSizeBytes != 2000 {
		t.Errorf("explicit session values were overwritten: %+v", sess)
	}
}

func TestValidate_SessionMissingID(t *testing.T) {
	cfg := Default()
	cfg.Rotation.Sessions = []SessionConfig{{ConsumedThresholdBytes: 1000}}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for session with empty id")
	}
}
