// Package main provides the nornicapply CLI entry point.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/orneryd/nornicapply/pkg/command"
	"github.com/orneryd/nornicapply/pkg/config"
	"github.com/orneryd/nornicapply/pkg/counts"
	"github.com/orneryd/nornicapply/pkg/engine"
	"github.com/orneryd/nornicapply/pkg/logging"
	"github.com/orneryd/nornicapply/pkg/txlog"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nornicapply",
		Short: "NornicDB transaction applier",
		Long: `nornicapply applies committed NornicDB transactions to the record store
and the counts store, and keeps a replayable transaction log.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "YAML config file (overlays NORNICDB_* environment)")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides config)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nornicapply v%s (%s)\n", version, commit)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Initialize a data directory with a default config file",
		RunE:  runInit,
	})

	applyCmd := &cobra.Command{
		Use:   "apply [file]",
		Short: "Apply transactions from a JSON-lines file (one array of command envelopes per line)",
		Args:  cobra.ExactArgs(1),
		RunE:  runApply,
	}
	rootCmd.AddCommand(applyCmd)

	replayCmd := &cobra.Command{
		Use:   "replay [txlog-dir]",
		Short: "Replay a transaction log into the data directory",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplay,
	}
	replayCmd.Flags().Uint64("after", 0, "Only replay transactions after this sequence number")
	rootCmd.AddCommand(replayCmd)

	countsCmd := &cobra.Command{
		Use:   "counts",
		Short: "Show node and relationship counts",
		RunE:  runCounts,
	}
	countsCmd.Flags().Int64Slice("label", nil, "Label ids to show node counts for")
	countsCmd.Flags().Int64Slice("type", nil, "Relationship type ids to show counts for")
	rootCmd.AddCommand(countsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig builds the configuration from the environment, the optional
// config file and command line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.LoadFromEnv()
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Database.DataDir = dataDir
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Memory.ApplyRuntimeMemory()
	return cfg, nil
}

// openEngine loads config, sets up logging and opens the engine. The returned
// cleanup closes both.
func openEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	log, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.Open(cfg, log)
	if err != nil {
		logCloser.Close()
		return nil, nil, err
	}
	cleanup := func() {
		if err := eng.Close(); err != nil {
			log.Error().Err(err).Msg("engine close failed")
		}
		logCloser.Close()
	}
	return eng, cleanup, nil
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dataDir := cfg.Database.DataDir
	fmt.Printf("Initializing nornicapply data directory %s\n", dataDir)

	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "records"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dataDir, "nornicapply.yaml")
	configContent := fmt.Sprintf(`# nornicapply configuration
database:
  data_dir: %s
  sync_writes: false

counts:
  backend: %s
  path: %s

txlog:
  dir: %s
  sync_mode: %s
  batch_sync_interval: %s

logging:
  level: info
  format: console
  output: stderr

metrics:
  namespace: %s
`, dataDir, cfg.Counts.Backend, cfg.Counts.Path, cfg.TxLog.Dir, cfg.TxLog.SyncMode,
		cfg.TxLog.BatchSyncInterval, cfg.Metrics.Namespace)
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Println("Data directory initialized")
	fmt.Printf("   Config: %s\n", configPath)
	return nil
}

// readTransactions parses one transaction per non-empty line.
func readTransactions(r io.Reader) ([][]command.Command, error) {
	var txs [][]command.Command
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var envelopes []txlog.Envelope
		if err := json.Unmarshal(raw, &envelopes); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cmds := make([]command.Command, len(envelopes))
		for i, env := range envelopes {
			cmd, err := txlog.DecodeCommand(env)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			cmds[i] = cmd
		}
		txs = append(txs, cmds)
	}
	return txs, scanner.Err()
}

func runApply(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()
	txs, err := readTransactions(f)
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	eng, cleanup, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	var commands, vetoed int
	for i, tx := range txs {
		res, err := eng.Apply(tx)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", i+1, err)
		}
		commands += res.Commands
		vetoed += res.Vetoed
	}
	fmt.Printf("Applied %s transactions (%s commands, %s vetoed)\n",
		humanize.Comma(int64(len(txs))), humanize.Comma(int64(commands)), humanize.Comma(int64(vetoed)))
	return nil
}

func runReplay(cmd *cobra.Command, args []string) error {
	after, _ := cmd.Flags().GetUint64("after")

	eng, cleanup, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := eng.Replay(args[0], after)
	if err != nil {
		return err
	}
	fmt.Printf("Replayed %s transactions (%s commands), last sequence %d\n",
		humanize.Comma(int64(res.Transactions)), humanize.Comma(int64(res.Commands)), res.LastSequence)
	return nil
}

func runCounts(cmd *cobra.Command, args []string) error {
	labelIDs, _ := cmd.Flags().GetInt64Slice("label")
	typeIDs, _ := cmd.Flags().GetInt64Slice("type")

	eng, cleanup, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	store := eng.Counts()
	nodes, err := store.NodeCount(counts.AnyLabel)
	if err != nil {
		return err
	}
	rels, err := store.RelationshipCount(counts.AnyLabel, counts.AnyType, counts.AnyLabel)
	if err != nil {
		return err
	}
	fmt.Println("Counts:")
	fmt.Printf("  Nodes:         %s\n", humanize.Comma(nodes))
	fmt.Printf("  Relationships: %s\n", humanize.Comma(rels))

	sort.Slice(labelIDs, func(i, j int) bool { return labelIDs[i] < labelIDs[j] })
	for _, label := range labelIDs {
		n, err := store.NodeCount(label)
		if err != nil {
			return err
		}
		fmt.Printf("  (:%d)          %s\n", label, humanize.Comma(n))
	}
	sort.Slice(typeIDs, func(i, j int) bool { return typeIDs[i] < typeIDs[j] })
	for _, relType := range typeIDs {
		n, err := store.RelationshipCount(counts.AnyLabel, relType, counts.AnyLabel)
		if err != nil {
			return err
		}
		fmt.Printf("  ()-[:%d]->()   %s\n", relType, humanize.Comma(n))
	}

	stats, err := eng.Records().Stats()
	if err != nil {
		return err
	}
	fmt.Println("Records:")
	fmt.Printf("  Nodes:               %s\n", humanize.Comma(stats.Nodes))
	fmt.Printf("  Relationships:       %s\n", humanize.Comma(stats.Relationships))
	fmt.Printf("  Relationship groups: %s\n", humanize.Comma(stats.RelationshipGroups))
	fmt.Printf("  Properties:          %s\n", humanize.Comma(stats.Properties))
	fmt.Printf("  Tokens:              %s\n", humanize.Comma(stats.Tokens))
	fmt.Printf("  Schema rules:        %s\n", humanize.Comma(stats.SchemaRules))

	if w := eng.TxLog(); w != nil {
		s := w.Stats()
		fmt.Println("Transaction log:")
		fmt.Printf("  Last sequence: %d\n", s.Sequence)
		fmt.Printf("  Path:          %s\n", w.Path())
	}
	return nil
}
