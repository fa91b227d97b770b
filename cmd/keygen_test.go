package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/michaelpento.lv/arbpipeline/shield"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keygenOutput(t *testing.T, args ...string) map[string]string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"keygen"}, args...))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
		withAttestation = false
	})
	require.NoError(t, rootCmd.Execute())

	values := make(map[string]string)
	for _, line := range strings.Split(out.String(), "\n") {
		if key, value, ok := strings.Cut(line, "="); ok {
			values[key] = value
		}
	}
	return values
}

func TestKeygenSigningKey(t *testing.T) {
	values := keygenOutput(t)

	_, err := crypto.HexToECDSA(strings.TrimPrefix(values["PRIVATE_KEY"], "0x"))
	require.NoError(t, err)
	assert.NotContains(t, values, "ATTESTATION_KEY")
}

func TestKeygenAttestationKeyParses(t *testing.T) {
	values := keygenOutput(t, "--attestation")

	require.Contains(t, values, "ATTESTATION_KEY")
	_, err := shield.ParseAttestationKey(values["ATTESTATION_KEY"])
	require.NoError(t, err)
}
