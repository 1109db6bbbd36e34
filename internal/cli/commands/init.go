package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/barrel/internal/cli/output"
	"github.com/spf13/cobra"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new barrel project",
		Long: `Initialize a new barrel project with a configuration file and a
starter manifest.

This creates:
  - barrel.yaml    project configuration
  - manifest.yaml  the bundle manifest, with inline fixtures so it
                   resolves before any module source exists

Use --example to create a project with TypeScript sources that shows
wildcard, named and renamed re-exports.`,
		Example: `  # Initialize in current directory
  barrel init

  # Initialize with a full working example
  barrel init --example

  # Initialize in a new directory
  barrel init my-bundle --example

  # Force overwrite existing files
  barrel init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			cfg := getConfig()
			mode := output.Mode(cfg.OutputFormat)
			r := output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

			if example {
				return runInit(r, dir, TemplateExample, force)
			}
			return runInit(r, dir, TemplateMinimal, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&example, "example", false, "Create an example project with TypeScript sources")

	return cmd
}

func runInit(r *output.Renderer, dir, template string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, "barrel.yaml")
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("barrel.yaml already exists. Use --force to overwrite")
	}

	written, err := copyTemplate(template, dir, force)
	if err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, _ := listTemplateFiles(template)
	groups := groupTemplateFiles(files)
	isWritten := make(map[string]bool, len(written))
	for _, f := range written {
		isWritten[f] = true
	}
	status := func(f string) string {
		if isWritten[f] {
			return "created"
		}
		return "kept"
	}

	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.StatusLine(f, status(f))
	}
	if len(groups["modules"]) > 0 {
		r.Header(2, "Modules")
		for _, f := range groups["modules"] {
			r.StatusLine(f, status(f))
		}
	}

	r.Println("")
	r.Success("barrel project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  barrel resolve   Show the resolved export surface")
	r.Println("  barrel check     Validate the manifest (CI-friendly)")
	r.Println("  barrel build     Bundle the surface with esbuild")
	r.Println("  barrel serve     Serve the surface and rebuild on change")

	return nil
}
