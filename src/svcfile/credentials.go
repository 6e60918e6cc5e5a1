package svcfile

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names under which the producer environment file lists
// the signing credential paths.
const (
	EnvKESKey = "POOL_KES_KEY"
	EnvVRFKey = "POOL_VRF_KEY"
	EnvOpCert = "POOL_OPCERT"
)

// CredentialSet holds the paths of the three artifacts a node needs to sign
// blocks. The controller only ever checks their presence; it never parses
// their contents.
type CredentialSet struct {
	KESKey string
	VRFKey string
	OpCert string
}

// CredentialsFromEnv reads the credential paths from a producer environment
// file. Variables that are absent leave the corresponding path empty, which
// Complete() then reports as missing.
func CredentialsFromEnv(path string) (CredentialSet, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return CredentialSet{}, fmt.Errorf("read environment file %s: %w", path, err)
	}

	return CredentialSet{
		KESKey: vars[EnvKESKey],
		VRFKey: vars[EnvVRFKey],
		OpCert: vars[EnvOpCert],
	}, nil
}

// Complete reports whether all three credentials are present and non-empty
// on the local filesystem.
func (c CredentialSet) Complete() bool {
	return len(c.Missing()) == 0
}

// Missing returns the names of the credentials that are absent or empty.
func (c CredentialSet) Missing() []string {
	var missing []string
	for _, item := range []struct {
		name string
		path string
	}{
		{"kes-key", c.KESKey},
		{"vrf-key", c.VRFKey},
		{"op-cert", c.OpCert},
	} {
		if !fileNonEmpty(item.path) {
			missing = append(missing, item.name)
		}
	}
	return missing
}

func fileNonEmpty(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}
