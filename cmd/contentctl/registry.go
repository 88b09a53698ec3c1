package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/onterra/onterra-web/internal/compose"
	"github.com/onterra/onterra-web/internal/registry"
)

func registryCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "registry",
		Short: "Print the content type to surface table as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.Default()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# registry version %s\n", reg.Version())
			return writeYAML(out, reg.Table())
		},
	}
}

// resolution is the printable form of registry.Resolution.
type resolution struct {
	Kind     string   `yaml:"kind"`
	Type     string   `yaml:"type"`
	Slug     string   `yaml:"slug,omitempty"`
	Family   bool     `yaml:"family,omitempty"`
	Surfaces []string `yaml:"surfaces"`
	Tags     []string `yaml:"tags"`
}

func resolveCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve TYPE [SLUG]",
		Short: "Show which surfaces and tags a change to TYPE invalidates",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := registry.Default()
			if err != nil {
				return err
			}
			slug := ""
			if len(args) == 2 {
				slug = args[1]
			}
			res := reg.Resolve(args[0], slug)
			return writeYAML(cmd.OutOrStdout(), resolution{
				Kind:     res.Kind.String(),
				Type:     res.Type,
				Slug:     res.Slug,
				Family:   res.Family,
				Surfaces: res.Surfaces,
				Tags:     res.Tags,
			})
		},
	}
}

func verifyCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the registry and the page composers agree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := registry.Default()
			if err != nil {
				return err
			}
			if err := compose.VerifyRegistry(reg); err != nil {
				return fmt.Errorf("registry %s out of lockstep:\n%w", reg.Version(), err)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: registry %s covers %d surfaces\n",
				reg.Version(), len(reg.Surfaces()))
			return err
		},
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
