package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/rowjay/search-backup-utility/internal/cryptoutil"
)

// EncryptConfigFile seals the config file at inputPath into outputPath.
// The input must parse as a config file of the type its extension names, and
// the output must carry an encrypted suffix so Load recognizes it.
func EncryptConfigFile(inputPath, outputPath, key string) error {
	if filepath.Clean(inputPath) == filepath.Clean(outputPath) {
		return fmt.Errorf("refusing to overwrite %s with its encrypted form", inputPath)
	}
	if !isEncryptedPath(outputPath) {
		return fmt.Errorf("encrypted config %s must end in .enc or .encrypted", outputPath)
	}
	plain, err := os.ReadFile(inputPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	vp := viper.New()
	vp.SetConfigType(configTypeFromPath(outputPath))
	if err := vp.ReadConfig(bytes.NewReader(plain)); err != nil {
		return fmt.Errorf("parse config %s: %w", inputPath, err)
	}

	parsed, err := cryptoutil.ParseKey(key)
	if err != nil {
		return err
	}
	sealed, err := cryptoutil.EncryptConfig(plain, parsed)
	if err != nil {
		return err
	}
	return os.WriteFile(outputPath, sealed, 0o600)
}
