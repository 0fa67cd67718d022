package backup

import (
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig holds flag defaults loadable from an optional YAML config
// file (`--config`), per the out-of-scope CLI surface described in
// spec.md §6 — the CLI's ambient configuration layer, specified the way
// the rest of the corpus does: a struct with yaml tags, CLI flags take
// precedence when explicitly set.
type FileConfig struct {
	Input             []string `yaml:"input"`
	InputProgram      []string `yaml:"input_program"`
	Output            string   `yaml:"output"`
	Sudo              bool     `yaml:"sudo"`
	Snapshot          string   `yaml:"snapshot"`
	SnapshotVolumeSize float64 `yaml:"snapshot_volume_size"`
	SnapshotMountDir  string   `yaml:"snapshot_mount_dir"`
	Compression       string   `yaml:"compression"`
	Password          string   `yaml:"password"`
	CipherAlgorithm   string   `yaml:"cipher_algorithm"`
	IOWriteRate       string   `yaml:"io_write_rate"`
	Verbose           bool     `yaml:"verbose"`

	UploadURL             string `yaml:"upload_url"`
	UploadAccessKeyID     string `yaml:"upload_access_key_id"`
	UploadSecretAccessKey string `yaml:"upload_secret_access_key"`
	NotifyProgram         string `yaml:"notify_program"`
}

// LoadFileConfig reads and parses a YAML config file. An empty path
// returns a zero-value FileConfig and no error, since --config is always
// optional; a path naming a file that cannot be read is an InputError.
func LoadFileConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, InputError(err, "reading config file %q", path)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return FileConfig{}, InputError(err, "parsing config file %q", path)
	}
	return cfg, nil
}
