package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/FreelineGuide/ExamBulldozer/internal/pipeline"
)

var checkAPIKey string

// errCheckFailed makes a failed key check exit non-zero without being a
// configuration error.
var errCheckFailed = errors.New("model check failed")

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models the router can serve",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app, _ []string) error {
		t := newTable("ID", "PROVIDER", "MAX TOKENS", "ENCODING", "KEY")
		for _, m := range a.models.List() {
			key := "-"
			if m.RequiresKey {
				key = "missing"
				if a.cfg.LLM.APIKeyFor(string(m.Provider)) != "" {
					key = "set"
				}
			}
			id := m.ID
			if m.ID == a.cfg.LLM.Model {
				id += " *"
			}
			t.Row(id, string(m.Provider), strconv.Itoa(m.MaxTokens), m.Encoding, key)
		}
		fmt.Fprintln(cmd.OutOrStdout(), t)
		return nil
	}),
}

var modelsCheckCmd = &cobra.Command{
	Use:   "check <model>",
	Short: "Send a short prompt to verify a model and its API key",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app, args []string) error {
		runCfg, err := a.settings().RunConfig(a.models, args[0], "", checkAPIKey)
		if err != nil {
			return err
		}
		res := pipeline.CheckModel(cmd.Context(), a.svc, runCfg)
		a.logger.Info("cli.models.check", "model", res.ModelID, "ok", res.OK, "code", res.Code, "elapsed_ms", res.ElapsedMS)

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else if res.OK {
			fmt.Fprintf(out, "%s: ok (%dms)\n", res.ModelID, res.ElapsedMS)
		} else {
			fmt.Fprintf(out, "%s: %s: %s\n", res.ModelID, res.Code, res.Message)
		}
		if !res.OK {
			return errCheckFailed
		}
		return nil
	}),
}

func init() {
	modelsCheckCmd.Flags().StringVar(&checkAPIKey, "api-key", "", "key to check instead of the configured one")
	modelsCheckCmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	modelsCmd.AddCommand(modelsCheckCmd)
	rootCmd.AddCommand(modelsCmd)
}
