package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/onterra/onterra-web/internal/cfg"
	"github.com/onterra/onterra-web/internal/revalidate"
)

// secretEnv holds the webhook secret. It is never accepted as a flag so it
// stays out of shell history and process listings.
const secretEnv = cfg.EnvPrefix + "REVALIDATE_SECRET"

func revalidateCmd(a *app) *cobra.Command {
	var (
		target  string
		ctype   string
		slug    string
		timeout time.Duration
	)
	c := &cobra.Command{
		Use:   "revalidate",
		Short: "Send a revalidation webhook to a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret := os.Getenv(secretEnv)
			if secret == "" {
				return fmt.Errorf("%s is not set", secretEnv)
			}
			body, err := json.Marshal(revalidate.Request{Secret: secret, Type: ctype, Slug: slug})
			if err != nil {
				return err
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, target, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := (&http.Client{Timeout: timeout}).Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			if err != nil {
				return err
			}

			if resp.StatusCode != http.StatusOK {
				var m struct {
					Message string `json:"message"`
				}
				if json.Unmarshal(raw, &m) != nil || m.Message == "" {
					m.Message = http.StatusText(resp.StatusCode)
				}
				return fmt.Errorf("revalidate: %d %s", resp.StatusCode, m.Message)
			}
			var ack revalidate.Ack
			if err := json.Unmarshal(raw, &ack); err != nil {
				return fmt.Errorf("revalidate: decode response: %w", err)
			}
			if !ack.Revalidated {
				return errors.New("revalidate: server did not confirm revalidation")
			}
			a.L.Debug(cmd.Context(), "revalidation acknowledged", "type", ack.Type, "now", ack.Now)
			return writeJSON(cmd.OutOrStdout(), ack)
		},
	}
	c.Flags().StringVar(&target, "url", "http://localhost:8080/revalidate", "revalidate endpoint")
	c.Flags().StringVar(&ctype, "type", "", "content type that changed")
	c.Flags().StringVar(&slug, "slug", "", "slug of the changed document, if any")
	c.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
	_ = c.MarkFlagRequired("type")
	return c
}
