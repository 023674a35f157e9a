package pathing

import (
	"os"
	"path/filepath"
)

// EnsureDirs creates the directories the services write to.
// Must be called on startup by anything that persists data.
func EnsureDirs() error {
	dirs := []string{
		GetDataDir(),
		GetConfigDir(),
	}

	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

func GetReadingDbPath() string {
	return filepath.Join(GetDataDir(), "adm300-readings.db")
}

func GetDataDir() string {
	if dir := os.Getenv("ADM300_DATA_DIR"); dir != "" {
		return dir
	}
	return "/var/lib/adm300_monitor"
}

func GetConfigDir() string {
	if dir := os.Getenv("ADM300_CONFIG_DIR"); dir != "" {
		return dir
	}
	return "/etc/adm300_monitor"
}
