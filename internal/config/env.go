package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// LoadEnv loads dotenv files into the process environment. Missing files are
// skipped and variables that are already set win over file values.
func LoadEnv(paths ...string) error {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if fi, err := os.Stat(p); err != nil || fi.IsDir() {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.Wrapf(err, "load env file %s", p)
		}
	}
	return nil
}

// LoadDefaultEnv loads env from A2T_ENV, ~/.a2t.env and ./.env, in that order.
func LoadDefaultEnv() error {
	paths := []string{strings.TrimSpace(os.Getenv("A2T_ENV"))}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".a2t.env"))
	}
	paths = append(paths, ".env")
	return LoadEnv(paths...)
}
