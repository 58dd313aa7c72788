package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseSpeedTiers(t *testing.T) {
	cases := []struct {
		raw  string
		want []float64
	}{
		{"0.7,0.85,1.0", []float64{0.7, 0.85, 1.0}},
		{" 0.5 , 1.0 ", []float64{0.5, 1.0}},
		{"garbage,1.25", []float64{1.25}},
		{"", []float64{0.7, 0.85, 1.0}},     // empty falls back
		{"-1,0", []float64{0.7, 0.85, 1.0}}, // non-positive rejected
	}
	for _, tc := range cases {
		got := parseSpeedTiers(tc.raw)
		if len(got) != len(tc.want) {
			t.Errorf("parseSpeedTiers(%q) = %v, want %v", tc.raw, got, tc.want)
			continue
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("parseSpeedTiers(%q) = %v, want %v", tc.raw, got, tc.want)
				break
			}
		}
	}
}

func TestReadSecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt_secret")
	if err := os.WriteFile(path, []byte("s3cret\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET", "")
	os.Unsetenv("JWT_SECRET")
	t.Setenv("JWT_SECRET_FILE", path)

	readSecret("JWT_SECRET")

	if got := os.Getenv("JWT_SECRET"); got != "s3cret" {
		t.Fatalf("JWT_SECRET = %q, want trimmed file content", got)
	}
}

func TestReadSecretPrefersEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt_secret")
	if err := os.WriteFile(path, []byte("from-file"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_SECRET_FILE", path)

	readSecret("JWT_SECRET")

	if got := os.Getenv("JWT_SECRET"); got != "from-env" {
		t.Fatalf("JWT_SECRET = %q, env must win over file", got)
	}
}
