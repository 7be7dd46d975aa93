package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv_helpers(t *testing.T) {
	t.Setenv("NLCD_TEST_STR", "value")
	t.Setenv("NLCD_TEST_INT", "12")
	t.Setenv("NLCD_TEST_BAD_INT", "twelve")
	t.Setenv("NLCD_TEST_BOOL", "true")
	t.Setenv("NLCD_TEST_DUR", "90s")
	t.Setenv("NLCD_TEST_SECS", "45")
	t.Setenv("NLCD_TEST_BAD_DUR", "soon")

	if got := GetEnv("NLCD_TEST_STR", "x"); got != "value" {
		t.Errorf("GetEnv = %q", got)
	}
	if got := GetEnv("NLCD_TEST_UNSET", "x"); got != "x" {
		t.Errorf("GetEnv fallback = %q", got)
	}
	if got := GetEnvInt("NLCD_TEST_INT", 1); got != 12 {
		t.Errorf("GetEnvInt = %d", got)
	}
	if got := GetEnvInt("NLCD_TEST_BAD_INT", 1); got != 1 {
		t.Errorf("GetEnvInt invalid = %d, want fallback", got)
	}
	if !GetEnvBool("NLCD_TEST_BOOL", false) || !GetEnvBool("NLCD_TEST_UNSET", true) {
		t.Error("GetEnvBool")
	}
	if got := GetEnvDuration("NLCD_TEST_DUR", time.Second); got != 90*time.Second {
		t.Errorf("GetEnvDuration = %v", got)
	}
	if got := GetEnvDuration("NLCD_TEST_SECS", time.Second); got != 45*time.Second {
		t.Errorf("GetEnvDuration seconds = %v", got)
	}
	if got := GetEnvDuration("NLCD_TEST_BAD_DUR", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration invalid = %v, want fallback", got)
	}
}

func TestLoad_dotenv(t *testing.T) {
	p := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(p, []byte("NLCD_TEST_FROM_FILE=loaded\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("NLCD_TEST_FROM_FILE") })
	if err := Load(p); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := os.Getenv("NLCD_TEST_FROM_FILE"); got != "loaded" {
		t.Errorf("NLCD_TEST_FROM_FILE = %q", got)
	}
	if err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestFromEnv_defaults(t *testing.T) {
	t.Setenv("FRAMES_PER_SECOND", "")
	t.Setenv("OUTPUT_PATH", "")
	t.Setenv("BOUNDARY_LAYER", "")
	t.Setenv("LABEL_YEARS", "1")
	s := FromEnv()
	if s.FramesPerSecond != 4 || s.LoopCount != 0 {
		t.Errorf("encoding defaults = %d fps, loop %d", s.FramesPerSecond, s.LoopCount)
	}
	if s.OutputPath != "nlcd.gif" || s.BoundaryLayer != "USA_adm2" {
		t.Errorf("defaults = %+v", s)
	}
	if !s.LabelYears {
		t.Error("LABEL_YEARS=1 not honoured")
	}
}
