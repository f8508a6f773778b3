package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relieflabs/firebreak/internal/profile"
)

var profileInitOutput string

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileListCmd)
	profileCmd.AddCommand(profileShowCmd)
	profileCmd.AddCommand(profileCheckCmd)
	profileCmd.AddCommand(profileInitCmd)

	profileInitCmd.Flags().StringVarP(&profileInitOutput, "output", "o", "", "Output path (default: ~/.firebreak/profiles/<name>.yaml)")
}

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage deployment profiles",
	Long:  "List, inspect, and scaffold deployment profiles. A profile overlays the\nactive policy: scope fields replace, content rules append.",
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List available deployment profiles",
	RunE:  runProfileList,
}

var profileShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show what a profile changes",
	Long:  "Loads a profile and displays its overlay. Use the --profile flag on\ncheck/triage/serve to apply it at runtime.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileShow,
}

var profileCheckCmd = &cobra.Command{
	Use:   "check <name>",
	Short: "Validate a profile loads cleanly",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileCheck,
}

var profileInitCmd = &cobra.Command{
	Use:   "init <name>",
	Short: "Generate a starter profile template",
	Long:  "Creates a commented YAML profile template under ~/.firebreak/profiles\nthat you can customize for your deployment.",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileInit,
}

func runProfileList(cmd *cobra.Command, args []string) error {
	names := profile.List()
	if len(names) == 0 {
		fmt.Println("No profiles available.")
		return nil
	}

	fmt.Println("Available profiles:")
	for _, name := range names {
		p, err := profile.Load(name)
		if err != nil {
			fmt.Printf("  %-15s (error loading: %v)\n", name, err)
			continue
		}
		fmt.Printf("  %-15s %s\n", name, p.Description)
	}
	return nil
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	name := args[0]
	p, err := profile.Load(name)
	if err != nil {
		return fmt.Errorf("failed to load profile %q: %w", name, err)
	}

	fmt.Printf("Profile: %s (%s)\n", p.Name, p.Description)
	fmt.Println()

	fmt.Println("Scope overrides:")
	overrides := 0
	if p.BaseDir != "" {
		fmt.Printf("  base_dir:              %s\n", p.BaseDir)
		overrides++
	}
	if p.MaxPathDepth != nil {
		fmt.Printf("  max_path_depth:        %d\n", *p.MaxPathDepth)
		overrides++
	}
	if p.AllowSubdirectories != nil {
		fmt.Printf("  allow_subdirectories:  %t\n", *p.AllowSubdirectories)
		overrides++
	}
	if p.HighVolumeThreshold != nil {
		fmt.Printf("  high_volume_threshold: %d\n", *p.HighVolumeThreshold)
		overrides++
	}
	if overrides == 0 {
		fmt.Println("  (none, policy values apply)")
	}
	fmt.Println()

	if len(p.ExtraClusters) > 0 {
		fmt.Println("Extra clusters (appended):")
		for _, cl := range p.ExtraClusters {
			fmt.Printf("  - [%s]\n", strings.Join(cl, ", "))
		}
		fmt.Println()
	}

	if len(p.ExtraPatterns) > 0 {
		fmt.Println("Extra patterns (appended):")
		for _, pat := range p.ExtraPatterns {
			fmt.Printf("  - /%s/\n", pat)
		}
		fmt.Println()
	}

	fmt.Println("To apply at runtime:")
	fmt.Printf("  firebreak check --profile %s --text \"...\"\n", name)
	fmt.Printf("  firebreak serve --profile %s\n", name)
	return nil
}

func runProfileCheck(cmd *cobra.Command, args []string) error {
	name := args[0]
	p, err := profile.Load(name)
	if err != nil {
		return fmt.Errorf("failed to load profile %q: %w", name, err)
	}

	if err := profile.Validate(p); err != nil {
		return fmt.Errorf("profile %q is invalid: %w", name, err)
	}

	fmt.Printf("Profile %q (%s) is valid.\n", name, p.Name)
	fmt.Printf("  Extra clusters:  %d\n", len(p.ExtraClusters))
	fmt.Printf("  Extra patterns:  %d\n", len(p.ExtraPatterns))
	return nil
}

func runProfileInit(cmd *cobra.Command, args []string) error {
	name := args[0]

	// Built-ins load ahead of user profiles, so a shadowing file would
	// never be picked up.
	for _, builtin := range []string{"production", "field-dev"} {
		if name == builtin {
			return fmt.Errorf("%q is a built-in profile, pick another name", name)
		}
	}

	outPath := profileInitOutput
	if outPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("cannot determine home directory: %w", err)
		}
		outPath = filepath.Join(home, ".firebreak", "profiles", name+".yaml")
	}

	if _, err := os.Stat(outPath); err == nil {
		return fmt.Errorf("file already exists: %s (remove it first or use --output)", outPath)
	}

	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	content := profile.InitTemplate(name)
	if err := os.WriteFile(outPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}

	fmt.Printf("Created profile template: %s\n", outPath)
	fmt.Printf("Edit it, then validate with: firebreak profile check %s\n", name)
	return nil
}
