package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/drunlade/go-zxmit/zxmit"
	"github.com/joho/godotenv"
)

// envPrefix marks the environment variables zxmit reads.
const envPrefix = "ZXMIT_"

// rcName is the settings file kept in the home directory.
const rcName = ".zxmitrc"

// Setting keys, without envPrefix
const (
	keyAddress  = "ADDRESS"
	keyCompress = "COMPRESS"
	keyDummy    = "DUMMY"
	keyLegacy   = "LEGACY"
	keyCodec    = "CODEC"
	keyChunk    = "CHUNK"
	keyTimeout  = "TIMEOUT"
	keySSH      = "SSH"
	keySSHKey   = "SSH_KEY"
	keyLog      = "LOG"
)

// settings is the merged configuration of one run.
type settings struct {
	Address  string
	Compress bool
	Dummy    bool
	Legacy   bool
	Codec    string
	Chunk    int
	Timeout  time.Duration
	SSH      string
	SSHKey   string
	LogFile  string
}

func defaultSettings() settings {
	def := zxmit.DefaultConfig()
	return settings{
		Compress: true,
		Codec:    def.Codec.Name(),
		Chunk:    def.ChunkSize,
		Timeout:  def.Timeout,
	}
}

// rcPath returns the path of the settings file, or "" if there is no home
// directory.
func rcPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, rcName)
}

// loadSettings layers defaults, then each file in order, then ZXMIT_*
// variables from environ. Missing files are skipped.
func loadSettings(files []string, environ []string) (settings, error) {
	values := make(map[string]string)

	for _, file := range files {
		if file == "" {
			continue
		}
		m, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return settings{}, fmt.Errorf("reading %s: %w", file, err)
		}
		for k, v := range m {
			values[k] = v
		}
	}

	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, envPrefix) {
			values[k] = v
		}
	}

	s := defaultSettings()
	if err := s.apply(values); err != nil {
		return settings{}, err
	}
	return s, nil
}

// apply overrides s with the ZXMIT_* entries of values.
func (s *settings) apply(values map[string]string) error {
	for key, v := range values {
		name, ok := strings.CutPrefix(key, envPrefix)
		if !ok {
			continue
		}
		v = strings.TrimSpace(v)

		var err error
		switch name {
		case keyAddress:
			s.Address = v
		case keyCompress:
			s.Compress, err = strconv.ParseBool(v)
		case keyDummy:
			s.Dummy, err = strconv.ParseBool(v)
		case keyLegacy:
			s.Legacy, err = strconv.ParseBool(v)
		case keyCodec:
			s.Codec = v
		case keyChunk:
			s.Chunk, err = strconv.Atoi(v)
		case keyTimeout:
			s.Timeout, err = time.ParseDuration(v)
		case keySSH:
			s.SSH = v
		case keySSHKey:
			s.SSHKey = v
		case keyLog:
			s.LogFile = v
		}
		if err != nil {
			return fmt.Errorf("invalid %s value %q: %w", key, v, err)
		}
	}
	return nil
}

// values returns the settings worth remembering between runs.
func (s settings) values() map[string]string {
	values := map[string]string{
		envPrefix + keyAddress:  s.Address,
		envPrefix + keyCompress: strconv.FormatBool(s.Compress),
		envPrefix + keyDummy:    strconv.FormatBool(s.Dummy),
		envPrefix + keyCodec:    s.Codec,
	}
	if s.SSH != "" {
		values[envPrefix+keySSH] = s.SSH
	}
	if s.SSHKey != "" {
		values[envPrefix+keySSHKey] = s.SSHKey
	}
	return values
}

// saveSettings stores the remembered settings in path.
func saveSettings(path string, s settings) error {
	if path == "" {
		return errors.New("no settings file")
	}
	return godotenv.Write(s.values(), path)
}

// validate checks the combination of settings before anything is sent and
// resolves the codec they name.
func (s settings) validate() (zxmit.Codec, error) {
	if s.Address == "" && !s.Dummy {
		return nil, errors.New("no receiver address given (argument, -a or ZXMIT_ADDRESS)")
	}
	if s.Chunk <= 0 || s.Chunk > zxmit.MaxPayload {
		return nil, fmt.Errorf("chunk size must be between 1 and %d", zxmit.MaxPayload)
	}
	if s.Timeout < 0 {
		return nil, errors.New("timeout must not be negative")
	}
	return zxmit.CodecByName(s.Codec)
}
