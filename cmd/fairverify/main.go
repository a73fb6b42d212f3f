package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fairCaseServer/crypto"
	"fairCaseServer/game"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fairverify",
		Short:         "Offline verifier for committed case openings",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(newVerifyCmd(), newCommitCmd(), newResolveCmd(), newSeedCmd(), newSimulateCmd())
	return root
}

func newVerifyCmd() *cobra.Command {
	var (
		file   string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify a revealed transcript (YAML or JSON)",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTranscript(file)
			if err != nil {
				return err
			}
			report, verifyErr := game.Verify(*t)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printReport(cmd.OutOrStdout(), report)
			}
			return verifyErr
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "transcript file")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	cmd.MarkFlagRequired("file")
	return cmd
}

func newCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit <serverSeed>",
		Short: "Print the commitment of a server seed",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), crypto.Commit(args[0]))
		},
	}
}

func newResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <serverSeed> <clientSeed> <nonce>",
		Short: "Recompute one round",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			nonce, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid nonce %q: %w", args[2], err)
			}
			out := game.Draw(args[0], args[1], nonce)
			fmt.Fprintf(cmd.OutOrStdout(), "hash:  %s\nvalue: %.8f\ntier:  %s %s\n",
				out.Hash, out.Value, out.Tier.Icon(), out.Tier)
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Generate a seed and its commitment",
		RunE: func(cmd *cobra.Command, args []string) error {
			seed, commitment, err := crypto.GenerateServerSeed()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seed:       %s\ncommitment: %s\n", seed, commitment)
			return nil
		},
	}
}

func newSimulateCmd() *cobra.Command {
	var (
		rounds  uint64
		batches int
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Draw rounds under fresh seeds and compare the tier distribution with the odds",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rounds == 0 {
				return errors.New("rounds must be positive")
			}
			for batch := 1; batch <= batches; batch++ {
				counts, err := simulate(rounds)
				if err != nil {
					return err
				}
				printDistribution(cmd.OutOrStdout(), batch, rounds, counts)
			}
			return nil
		},
	}

	cmd.Flags().Uint64Var(&rounds, "rounds", 10000, "rounds per batch")
	cmd.Flags().IntVar(&batches, "batches", 5, "number of batches")
	return cmd
}

// loadTranscript reads a transcript; .json files are parsed as JSON, all
// others as YAML
func loadTranscript(path string) (*game.Transcript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}

	var t game.Transcript
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &t)
	} else {
		err = yaml.Unmarshal(data, &t)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse transcript: %w", err)
	}

	if t.ServerSeed == "" || t.Commitment == "" {
		return nil, errors.New("transcript needs serverSeed and commitment")
	}
	return &t, nil
}

func printReport(w io.Writer, r *game.Report) {
	mark := func(ok bool) string {
		if ok {
			return "✅"
		}
		return "❌"
	}

	fmt.Fprintf(w, "%s commitment %s\n", mark(r.CommitmentMatch), r.Commitment)
	if !r.CommitmentMatch {
		fmt.Fprintf(w, "   seed hashes to %s\n", r.ExpectedCommitment)
	}
	for _, rc := range r.Rounds {
		fmt.Fprintf(w, "%s nonce %-6d %s %-9s %.5f\n", mark(rc.Match), rc.Nonce, rc.Tier.Icon(), rc.Tier, rc.Value)
		if !rc.Match {
			fmt.Fprintf(w, "   claimed  %s\n   expected %s\n", rc.Claimed, rc.Expected)
		}
	}

	if r.Trusted {
		fmt.Fprintf(w, "\n✅ %d rounds verified\n", len(r.Rounds))
		return
	}

	fmt.Fprintln(w, "\n❌ transcript NOT trusted")
	if !r.CommitmentMatch {
		fmt.Fprintln(w, "   server seed does not match the published commitment")
	}
	if len(r.Mismatched) > 0 {
		fmt.Fprintf(w, "   %d mismatched rounds\n", len(r.Mismatched))
	}
}

// simulate draws rounds nonces under one fresh seed pair
func simulate(rounds uint64) (map[game.Tier]uint64, error) {
	serverSeed, _, err := crypto.GenerateServerSeed()
	if err != nil {
		return nil, err
	}
	clientSeed, err := crypto.GenerateSeed()
	if err != nil {
		return nil, err
	}

	counts := make(map[game.Tier]uint64, len(game.Tiers))
	for nonce := uint64(0); nonce < rounds; nonce++ {
		counts[game.Draw(serverSeed, clientSeed, nonce).Tier]++
	}
	return counts, nil
}

func printDistribution(w io.Writer, batch int, rounds uint64, counts map[game.Tier]uint64) {
	fmt.Fprintf(w, "Batch %d (%d rounds):", batch, rounds)
	for _, tier := range game.Tiers {
		got := float64(counts[tier]) / float64(rounds) * 100
		fmt.Fprintf(w, " %s %s %.2f%% (odds %.2f%%)", tier.Icon(), tier, got, game.Odds(tier)*100)
	}
	fmt.Fprintln(w)
}
