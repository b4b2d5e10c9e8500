package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/remotesql/internal/engine"
)

// seedOutput is the structured form of a seed run.
type seedOutput struct {
	SeedsDir string     `json:"seeds_dir" yaml:"seeds_dir"`
	Target   string     `json:"target" yaml:"target"`
	Seeds    []seedInfo `json:"seeds" yaml:"seeds"`
}

type seedInfo struct {
	Name     string `json:"name" yaml:"name"`
	FilePath string `json:"file_path" yaml:"file_path"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load seed data from CSV files",
		Long: `Load CSV files from the seeds directory into the target database, one
table per file named after it. Existing tables of the same name are
replaced.

Seeds give a served database its data; serve loads them itself at startup,
so this command is for targets that outlive the server (a database file or
postgres).`,
		Example: `  # Load all seeds into the configured target
  remotesql seed

  # Load seeds from a specific directory into a database file
  remotesql seed --seeds-dir ./data/seeds --database data.db`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd)
		},
	}
}

func runSeed(cmd *cobra.Command) error {
	c, cleanup, err := NewTargetCommandContext(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	r := c.Renderer
	seedsDir := c.Engine.SeedsDir()

	files, err := engine.SeedFiles(seedsDir)
	if err != nil {
		return err
	}

	loaded, err := c.Engine.LoadSeeds(cmd.Context())
	if err != nil {
		r.Error("failed to load seeds")
		return err
	}

	out := seedOutput{SeedsDir: seedsDir, Target: c.Engine.AdapterType(), Seeds: make([]seedInfo, 0, len(loaded))}
	for i, name := range loaded {
		out.Seeds = append(out.Seeds, seedInfo{Name: name, FilePath: filepath.Join(seedsDir, files[i])})
	}

	if ok, err := r.Structured(out); ok {
		return err
	}

	r.Header(1, "Seeds")
	if len(out.Seeds) == 0 {
		r.Muted("No seed files found in " + seedsDir)
		return nil
	}
	for _, s := range out.Seeds {
		r.StatusLine(s.Name, "success", filepath.Base(s.FilePath))
	}
	r.Println("")
	r.Muted(fmt.Sprintf("Loaded %d %s from %s into %s", len(out.Seeds), plural(len(out.Seeds), "seed"), seedsDir, out.Target))
	return nil
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

