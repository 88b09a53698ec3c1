package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/onterra/onterra-web/internal/assets"
	"github.com/onterra/onterra-web/internal/backend"
	"github.com/onterra/onterra-web/internal/compose"
	"github.com/onterra/onterra-web/internal/content"
	"github.com/onterra/onterra-web/internal/registry"
)

func composeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compose PATH",
		Short: "Compose the view-model for PATH against the configured store and print it as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			reg, err := registry.Default()
			if err != nil {
				return err
			}
			s, slug, ok := reg.Match(args[0])
			if !ok {
				return fmt.Errorf("%s is not a known surface", args[0])
			}
			c, err := a.composer(ctx)
			if err != nil {
				return err
			}
			var params content.Params
			if slug != "" {
				params = content.Params{content.ParamSlug: slug}
			}
			vm, err := c.Compose(ctx, s.Path, params)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), vm)
		},
	}
}

func (a *app) composer(ctx context.Context) (*compose.Composer, error) {
	awsCfg := sync.OnceValues(func() (aws.Config, error) {
		return config.LoadDefaultConfig(ctx)
	})
	be, err := backend.Open(ctx, a.L, a.conf, awsCfg, nil)
	if err != nil {
		return nil, err
	}
	if err := be.Readiness.Check(ctx); err != nil {
		return nil, err
	}
	client, err := content.NewClient(content.Options{
		Transport: be.Transport,
		Timeout:   a.conf.FetchTimeout,
		Logger:    a.L,
	})
	if err != nil {
		return nil, err
	}
	return compose.New(compose.Options{
		Client: client,
		Assets: assets.Resolver{
			CDNBase:   a.conf.AssetCDNBase,
			ProjectID: a.conf.SanityProjectID,
			Dataset:   a.conf.SanityDataset,
		},
		Logger: a.L,
	})
}
