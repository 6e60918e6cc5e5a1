package svcfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// UnitFile is a structured handle on the node's systemd unit definition. It
// keeps every line verbatim and only ever touches the single
// EnvironmentFile= line that encodes the role, so operator edits elsewhere
// in the unit survive a rewrite untouched.
type UnitFile struct {
	path     string
	mode     os.FileMode
	lines    []string
	envIndex int
	optional bool // the EnvironmentFile path carried a leading '-'
	envPath  string
}

const envFileKey = "EnvironmentFile="

// LoadUnit reads the unit file at path and locates its EnvironmentFile
// reference. It is an error for the unit to contain no EnvironmentFile line,
// or more than one: the role encoding must never be ambiguous.
func LoadUnit(path string) (*UnitFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat unit file: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read unit file: %w", err)
	}

	u := &UnitFile{
		path:     path,
		mode:     info.Mode().Perm(),
		lines:    strings.Split(string(raw), "\n"),
		envIndex: -1,
	}

	for i, line := range u.lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, envFileKey) {
			continue
		}
		if u.envIndex >= 0 {
			return nil, fmt.Errorf("unit file %s contains more than one EnvironmentFile line", path)
		}
		u.envIndex = i
		value := strings.TrimPrefix(trimmed, envFileKey)
		if strings.HasPrefix(value, "-") {
			u.optional = true
			value = strings.TrimPrefix(value, "-")
		}
		u.envPath = value
	}

	if u.envIndex < 0 {
		return nil, fmt.Errorf("unit file %s contains no EnvironmentFile line", path)
	}

	return u, nil
}

// EnvPath returns the environment file currently referenced by the unit.
func (u *UnitFile) EnvPath() string {
	return u.envPath
}

// Role decodes the role from the referenced environment file's suffix.
func (u *UnitFile) Role() (Role, error) {
	switch {
	case strings.HasSuffix(u.envPath, ProducerSuffix):
		return BlockProducer, nil
	case strings.HasSuffix(u.envPath, StandbySuffix):
		return Standby, nil
	default:
		return Standby, fmt.Errorf("environment file %q encodes no known role", u.envPath)
	}
}

// SetRole points the unit's EnvironmentFile line at the environment file for
// the given role. It reports whether the unit actually changed.
func (u *UnitFile) SetRole(role Role, producerEnv, standbyEnv string) bool {
	target := standbyEnv
	if role == BlockProducer {
		target = producerEnv
	}

	if u.envPath == target {
		return false
	}

	prefix := ""
	if u.optional {
		prefix = "-"
	}

	// Preserve the original line's leading whitespace.
	line := u.lines[u.envIndex]
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]

	u.lines[u.envIndex] = indent + envFileKey + prefix + target
	u.envPath = target

	return true
}

// Save writes the unit back to disk atomically, via a temp file in the same
// directory followed by a rename, preserving the original file mode.
func (u *UnitFile) Save() error {
	dir := filepath.Dir(u.path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(u.path)+".tmp")
	if err != nil {
		return fmt.Errorf("create temp unit file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(strings.Join(u.lines, "\n")); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp unit file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp unit file: %w", err)
	}

	if err := os.Chmod(tmpName, u.mode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp unit file: %w", err)
	}

	if err := os.Rename(tmpName, u.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace unit file: %w", err)
	}

	return nil
}
