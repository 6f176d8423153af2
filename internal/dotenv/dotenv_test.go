package dotenv

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFile_MissingFileIsNoop(t *testing.T) {
	t.Parallel()
	if err := LoadFile(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("LoadFile missing file error: %v", err)
	}
}

func TestLoadFile_DirectoryIsError(t *testing.T) {
	t.Parallel()
	if err := LoadFile(t.TempDir()); err == nil {
		t.Fatalf("expected error loading a directory")
	}
}

func TestLoadFile_Values(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "" +
		"# revlive local settings\n" +
		"REVLIVE_TEST_KEY=AIza-test\n" +
		"REVLIVE_TEST_MODEL=\"gemini-1.5-flash\"\n" +
		"export REVLIVE_TEST_PORT=3000\n" +
		"REVLIVE_TEST_INLINE=info # chatty in dev\n" +
		"REVLIVE_TEST_MULTILINE=\"first\\nsecond\"\n" +
		"REVLIVE_TEST_SINGLE='keep # this'\n" +
		"REVLIVE_TEST_EXISTING=from_file\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	keys := []string{
		"REVLIVE_TEST_KEY", "REVLIVE_TEST_MODEL", "REVLIVE_TEST_PORT",
		"REVLIVE_TEST_INLINE", "REVLIVE_TEST_MULTILINE", "REVLIVE_TEST_SINGLE",
	}
	t.Cleanup(func() {
		for _, k := range keys {
			_ = os.Unsetenv(k)
		}
	})
	t.Setenv("REVLIVE_TEST_EXISTING", "from_shell")

	if err := LoadFile(envPath); err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}

	tests := []struct {
		key  string
		want string
	}{
		{key: "REVLIVE_TEST_KEY", want: "AIza-test"},
		{key: "REVLIVE_TEST_MODEL", want: "gemini-1.5-flash"},
		{key: "REVLIVE_TEST_PORT", want: "3000"},
		{key: "REVLIVE_TEST_INLINE", want: "info"},
		{key: "REVLIVE_TEST_MULTILINE", want: "first\nsecond"},
		{key: "REVLIVE_TEST_SINGLE", want: "keep # this"},
		{key: "REVLIVE_TEST_EXISTING", want: "from_shell"},
	}
	for _, tt := range tests {
		if got := os.Getenv(tt.key); got != tt.want {
			t.Errorf("%s=%q, want %q", tt.key, got, tt.want)
		}
	}
}
