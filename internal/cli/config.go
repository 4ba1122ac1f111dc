package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/paysim/paysim/internal/params"
)

// ParamsOptions holds the flags that select and override run parameters.
type ParamsOptions struct {
	Config string
	Seed   int64
	Steps  int
}

// addParamsFlags registers --config, --seed and --steps on cmd.
func addParamsFlags(cmd *cobra.Command, opts *ParamsOptions) {
	cmd.Flags().StringVarP(&opts.Config, "config", "c", "", "parameters file (YAML); defaults are used when empty")
	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "override the random seed")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "override the number of simulated steps")
}

// loadParams loads the configured parameters and applies the flags that
// were set explicitly. The result is validated.
func loadParams(opts *ParamsOptions, flags *pflag.FlagSet) (*params.Parameters, error) {
	p, err := params.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load parameters", err)
	}

	overridden := false
	if flags.Changed("seed") {
		p.Seed = opts.Seed
		overridden = true
	}
	if flags.Changed("steps") {
		p.Steps = opts.Steps
		overridden = true
	}
	if overridden {
		if err := params.Check(p); err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid parameters", err)
		}
	}
	return p, nil
}
