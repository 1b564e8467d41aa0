package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/merlin/internal/bus"
	"github.com/opensource-finance/merlin/internal/worker"
)

func newSubmitCmd(opts *options) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "submit [profile.json]",
		Short: "Send a profile to a running merlin over NATS and print the decision",
		Long: "Read a flat JSON profile from the file, or stdin when no file is given, and\n" +
			"request a decision from whichever merlin replica serves the NATS bus.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if cfg.EventBus.Type != "nats" {
				return errors.New("submit requires eventbus.type nats")
			}

			var in io.Reader = cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			profile, err := readProfile(in)
			if err != nil {
				return err
			}

			b, err := bus.New(cfg.EventBus)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			d, err := worker.Submit(ctx, b, profile)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "how long to wait for the decision")
	return cmd
}

// readProfile reads one JSON object.
func readProfile(r io.Reader) (json.RawMessage, error) {
	var raw map[string]any
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return nil, fmt.Errorf("profile must be a JSON object")
	}
	return data, nil
}
