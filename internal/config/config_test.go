package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestConfigRoundTrip(t *testing.T) {
	cfg := NewConfig("/home/user/.local/share/arpa")
	cfg.Behaviour.Operator = "observer"
	cfg.Behaviour.AutoAddPulsars = true
	cfg.Archive.Type = "s3"
	cfg.Archive.S3Bucket = "arpa-archive"
	cfg.Archive.S3Region = "ap-southeast-2"
	cfg.Archive.S3Endpoint = "http://minio.local:9000"
	cfg.Archive.S3AccessKeyID = "arpa"
	cfg.Archive.S3SecretAccessKey = "secret"
	cfg.Archive.S3PathStyle = true

	m := &Manager{}
	var buf bytes.Buffer
	if err := m.Write(&buf, cfg); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := m.Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	if got.BaseDir != cfg.BaseDir {
		t.Errorf("BaseDir = %q, want %q", got.BaseDir, cfg.BaseDir)
	}
	if got.Behaviour.Operator != "observer" || !got.Behaviour.AutoAddPulsars {
		t.Errorf("Behaviour = %+v", got.Behaviour)
	}
	if got.Archive.Type != "s3" || got.Archive.S3Bucket != "arpa-archive" {
		t.Errorf("Archive = %+v", got.Archive)
	}
	if got.Archive.S3Endpoint != "http://minio.local:9000" || !got.Archive.S3PathStyle {
		t.Errorf("S3 endpoint config = %+v", got.Archive)
	}
	if got.Archive.S3AccessKeyID != "arpa" || got.Archive.S3SecretAccessKey != "secret" {
		t.Errorf("S3 credentials = %+v", got.Archive)
	}
	if got.Database.Type != "sqlite" {
		t.Errorf("Database.Type = %q, want sqlite", got.Database.Type)
	}
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig("/base")

	if cfg.LogDir != filepath.Join("/base", "log") {
		t.Errorf("LogDir = %q", cfg.LogDir)
	}
	if cfg.Database.Type != "sqlite" || cfg.Database.DataDir == "" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Archive.Type != "filesystem" || cfg.Archive.Root == "" {
		t.Errorf("Archive = %+v", cfg.Archive)
	}
	if !cfg.Behaviour.ArchiveRawFiles {
		t.Error("ArchiveRawFiles should default to true")
	}
	if cfg.Behaviour.Method == "" || cfg.Behaviour.NChannels == 0 || cfg.Behaviour.NSubints == 0 {
		t.Errorf("fit defaults missing: %+v", cfg.Behaviour)
	}
}

func TestReadFromFile(t *testing.T) {
	t.Run("reads a valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "arpa.toml")
		content := strings.Join([]string{
			`base_dir = "/data/arpa"`,
			``,
			`[database]`,
			`type = "sqlite"`,
			`data_dir = "/data/arpa/db"`,
			``,
			`[behaviour]`,
			`operator = "observer"`,
			`method = "FDM"`,
		}, "\n")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("writing config: %v", err)
		}

		cfg, err := ReadFromFile(path)
		if err != nil {
			t.Fatalf("ReadFromFile() error = %v", err)
		}
		if cfg.BaseDir != "/data/arpa" || cfg.Behaviour.Operator != "observer" {
			t.Errorf("cfg = %+v", cfg)
		}
	})

	t.Run("missing file is an error", func(t *testing.T) {
		if _, err := ReadFromFile(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
			t.Fatal("ReadFromFile(missing) = nil error")
		}
	})
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "arpa.toml")
	cfg := NewConfig("/base")

	if err := Init(path, cfg); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := Init(path, cfg); err == nil {
		t.Fatal("second Init() = nil error, want refusal to overwrite")
	}
}
