package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Conceptual-Machines/variation-explorer/internal/config"
	"github.com/Conceptual-Machines/variation-explorer/internal/explore"
	"github.com/Conceptual-Machines/variation-explorer/internal/models"
	"github.com/spf13/cobra"
)

var (
	explorePrompt   string
	exploreSeed     int64
	exploreSteps    int
	exploreGuidance float64
	exploreSampler  string
	exploreUnlock   []string
	exploreLock     []string
	explorePromote  int
	exploreRandSeed uint64
	exploreJSON     bool
	exploreSync     bool
)

var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Render one batch of variations and print it",
	Long: `Generates a batch of 8 variations around the center, renders the center
and each variation sequentially against the backend and prints the results.

Examples:
  explorer explore --prompt "a cat"                       # reseed only (default locks)
  explorer explore --prompt "a cat" --unlock steps,guidance
  explorer explore --sync --promote 2                     # promote cell 2 and run a second batch
  explorer explore --json | jq '.cells[].asset'`,
	RunE: runExplore,
}

func init() {
	f := exploreCmd.Flags()
	f.StringVar(&explorePrompt, "prompt", "", "center prompt (default from config)")
	f.Int64Var(&exploreSeed, "seed", 0, "center seed, -1 for random (default from config)")
	f.IntVar(&exploreSteps, "steps", 0, "center sampling steps (default from config)")
	f.Float64Var(&exploreGuidance, "guidance", 0, "center guidance scale (default from config)")
	f.StringVar(&exploreSampler, "sampler", "", "center sampler (default from config)")
	f.StringSliceVar(&exploreUnlock, "unlock", nil, "fields to unlock: steps, guidance, scheduler, seed, prompt")
	f.StringSliceVar(&exploreLock, "lock", nil, "fields to lock")
	f.IntVar(&explorePromote, "promote", -1, "after the batch, promote this cell and run another batch")
	f.Uint64Var(&exploreRandSeed, "rand-seed", 0, "seed the mutation generator for a reproducible batch")
	f.BoolVar(&exploreJSON, "json", false, "print snapshots as JSON")
	f.BoolVar(&exploreSync, "sync", false, "load the center from the generation store first")
}

func runExplore(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cfg)
	if err != nil {
		return err
	}

	center, locks, err := exploreCenter(cmd, cfg)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	if exploreRandSeed != 0 {
		rng = rand.New(rand.NewPCG(exploreRandSeed, exploreRandSeed))
	}

	stderr := cmd.ErrOrStderr()
	controller := explore.New(explore.Deps{
		Renderer:    svc.renderer,
		Rewriter:    svc.rewriter,
		Generations: svc.store,
		Rand:        rng,
		Center:      center,
		Locks:       locks,
		SessionID:   "cli",
		Hooks: explore.Hooks{
			OnRender: func(role string, d time.Duration, outcome string) {
				svc.recorder.ObserveRender(role, d, outcome)
				fmt.Fprintf(stderr, "  %-8s %-9s %s\n", role, outcome, d.Round(time.Millisecond))
			},
			OnBatch: func(b models.Batch) {
				svc.recorder.ObserveBatch(ctx, "cli", len(b.Cells), b.Padded)
				fmt.Fprintf(stderr, "batch: %d cells (%d fallback)\n", len(b.Cells), b.Padded)
			},
		},
	})

	if exploreSync {
		if err := controller.SyncFromGeneration(ctx); err != nil {
			return err
		}
		// explicit flags still win over the stored values
		controller.UpdateCenter(func(p *models.ParameterSet) { applyCenterFlags(cmd, p) })
	}

	if err := controller.RefreshVariations(ctx); err != nil {
		return err
	}
	if err := printSnapshot(cmd.OutOrStdout(), controller.Snapshot()); err != nil {
		return err
	}

	if explorePromote < 0 || ctx.Err() != nil {
		return nil
	}
	if err := controller.PromoteToCenter(ctx, explorePromote); err != nil {
		return err
	}
	return printSnapshot(cmd.OutOrStdout(), controller.Snapshot())
}

// exploreCenter builds the starting center and locks from config and flags
func exploreCenter(cmd *cobra.Command, cfg *config.Config) (models.ParameterSet, models.LockSet, error) {
	center := cfg.Explorer.Center
	applyCenterFlags(cmd, &center)

	locks := cfg.Explorer.Locks
	for _, name := range exploreUnlock {
		field, err := models.ParseLockField(name)
		if err != nil {
			return center, locks, err
		}
		if locks.Get(field) {
			locks = locks.Toggle(field)
		}
	}
	for _, name := range exploreLock {
		field, err := models.ParseLockField(name)
		if err != nil {
			return center, locks, err
		}
		if !locks.Get(field) {
			locks = locks.Toggle(field)
		}
	}
	return center, locks, nil
}

func applyCenterFlags(cmd *cobra.Command, p *models.ParameterSet) {
	flags := cmd.Flags()
	if flags.Changed("prompt") {
		p.Prompt = explorePrompt
	}
	if flags.Changed("seed") {
		p.Seed = exploreSeed
	}
	if flags.Changed("steps") {
		p.Steps = exploreSteps
	}
	if flags.Changed("guidance") {
		p.GuidanceScale = exploreGuidance
	}
	if flags.Changed("sampler") {
		p.Sampler = models.NormalizeSampler(exploreSampler)
	}
}

func printSnapshot(w io.Writer, snap explore.Snapshot) error {
	if exploreJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "#\tLABEL\tSEED\tSTEPS\tCFG\tSAMPLER\tASSET\n")
	fmt.Fprintf(tw, "C\tCenter\t%s\n", row(snap.Center, snap.CenterAsset))
	for i, cell := range snap.Cells {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i, cell.Label, row(cell.Params, cell.Asset))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "prompt: %s\n\n", snap.Center.Prompt)
	return err
}

func row(p models.ParameterSet, asset *string) string {
	ref := "-"
	if asset != nil {
		ref = *asset
	}
	return fmt.Sprintf("%d\t%d\t%.1f\t%s\t%s", p.Seed, p.Steps, p.GuidanceScale, p.Sampler, ref)
}

