package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fairCaseServer/crypto"
	"fairCaseServer/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func honestTranscript() game.Transcript {
	t := game.Transcript{
		ServerSeed: "seedX",
		Commitment: crypto.Commit("seedX"),
		ClientSeed: "clientY",
	}
	for nonce := uint64(0); nonce < 3; nonce++ {
		t.Rounds = append(t.Rounds, game.ClaimedRound{Nonce: nonce, OutcomeHash: game.Resolve("seedX", "clientY", nonce)})
	}
	return t
}

func writeYAML(t *testing.T, tr game.Transcript) string {
	t.Helper()
	data, err := yaml.Marshal(tr)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "transcript.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestVerify_HonestYAML(t *testing.T) {
	out, err := run(t, "verify", "--file", writeYAML(t, honestTranscript()))
	require.NoError(t, err)
	assert.Contains(t, out, "3 rounds verified")
}

func TestVerify_JSONFile(t *testing.T) {
	data, err := json.Marshal(honestTranscript())
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "transcript.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	tr, err := loadTranscript(path)
	require.NoError(t, err)
	assert.Equal(t, honestTranscript(), *tr)

	out, err := run(t, "verify", "--file", path, "--json")
	require.NoError(t, err)

	var report game.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Trusted)
}

func TestVerify_TamperedFails(t *testing.T) {
	tr := honestTranscript()
	tr.Rounds[2].OutcomeHash = strings.Repeat("0", 64)

	out, err := run(t, "verify", "-f", writeYAML(t, tr))
	require.Error(t, err)
	assert.ErrorIs(t, err, game.ErrOutcomeMismatch)
	assert.Contains(t, out, "NOT trusted")
	assert.Contains(t, out, "1 mismatched rounds")
	assert.NotContains(t, out, "published commitment")
}

func TestVerify_WrongCommitmentFails(t *testing.T) {
	tr := honestTranscript()
	tr.Commitment = crypto.Commit("seedZ")

	out, err := run(t, "verify", "-f", writeYAML(t, tr))
	assert.ErrorIs(t, err, game.ErrCommitmentMismatch)
	assert.Contains(t, out, "NOT trusted")
	assert.Contains(t, out, "server seed does not match the published commitment")
	assert.NotContains(t, out, "mismatched rounds")
}

func TestLoadTranscript_Incomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(path, []byte("clientSeed: x\n"), 0o600))

	_, err := loadTranscript(path)
	assert.Error(t, err)
}

func TestCommitAndResolve(t *testing.T) {
	out, err := run(t, "commit", "abc")
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad\n", out)

	out, err = run(t, "resolve", "seedX", "clientY", "0")
	require.NoError(t, err)
	assert.Contains(t, out, game.Resolve("seedX", "clientY", 0))

	_, err = run(t, "resolve", "seedX", "clientY", "-1")
	assert.Error(t, err)
}

func TestSimulate(t *testing.T) {
	counts, err := simulate(2000)
	require.NoError(t, err)

	var total uint64
	for _, n := range counts {
		total += n
	}
	assert.Equal(t, uint64(2000), total)

	out, err := run(t, "simulate", "--rounds", "100", "--batches", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "Batch 2 (100 rounds)")
}
