package abcli

import (
	"errors"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/ligadeals/ligadeals-web/internal/xerrors"
)

// Config holds abctl defaults. Flags override every field.
type Config struct {
	DBPath   string `env:"LIGADEALS_AB_DB" envDefault:"./ab.db"`
	LogLevel string `env:"LIGADEALS_LOG_LEVEL" envDefault:"warn"`
	S3Bucket string `env:"LIGADEALS_AB_S3_BUCKET"`
	S3Prefix string `env:"LIGADEALS_AB_S3_PREFIX" envDefault:"ab-reports"`
}

// LoadConfig reads a .env file from the working directory when present and
// then the process environment. Values already set in the environment win.
func LoadConfig(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, xerrors.Wrap(err, "load .env")
	}
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, xerrors.Wrap(err, "parse env")
	}
	return c, nil
}
