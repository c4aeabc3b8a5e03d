package config

import "testing"

func TestLoadReadsCriticalEnvKeys(t *testing.T) {
	t.Setenv("SKALD_DB_DSN", "skald.db")
	t.Setenv("SKALD_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("SKALD_GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("SKALD_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.DBDSN != "skald.db" {
		t.Fatalf("unexpected DB DSN: %q", cfg.DBDSN)
	}
	if cfg.PublishTarget != PublishYouTube {
		t.Fatalf("unexpected default publish target: %q", cfg.PublishTarget)
	}
	if cfg.DownloaderBin != "yt-dlp" {
		t.Fatalf("unexpected default downloader: %q", cfg.DownloaderBin)
	}
	if cfg.PublishMaxAttempts != 5 {
		t.Fatalf("unexpected default publish attempts: %d", cfg.PublishMaxAttempts)
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Setenv("SKALD_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("SKALD_GOOGLE_CLIENT_SECRET", "client-secret")

	if _, err := Load(); err == nil {
		t.Fatal("expected config load without DSN to fail")
	}
}

func TestLoadYouTubeTargetRequiresOAuthClient(t *testing.T) {
	t.Setenv("SKALD_DB_DSN", "skald.db")
	t.Setenv("SKALD_PUBLISH_TARGET", "youtube")

	if _, err := Load(); err == nil {
		t.Fatal("expected youtube target without OAuth client to fail")
	}
}

func TestLoadS3TargetRequiresBucket(t *testing.T) {
	t.Setenv("SKALD_DB_DSN", "skald.db")
	t.Setenv("SKALD_PUBLISH_TARGET", "s3")

	if _, err := Load(); err == nil {
		t.Fatal("expected s3 target without bucket to fail")
	}

	t.Setenv("SKALD_S3_BUCKET", "skald-archive")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected s3 target with bucket to load: %v", err)
	}
	if cfg.S3Bucket != "skald-archive" {
		t.Fatalf("unexpected bucket: %q", cfg.S3Bucket)
	}
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("SKALD_DB_DSN", "skald.db")
	t.Setenv("SKALD_GOOGLE_CLIENT_ID", "client-id")
	t.Setenv("SKALD_GOOGLE_CLIENT_SECRET", "client-secret")
	t.Setenv("SKALD_DB_BACKEND", "mongodb")

	if _, err := Load(); err == nil {
		t.Fatal("expected unknown database backend to fail")
	}
}
