package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mdp/qrterminal/v3"
	"github.com/spf13/cobra"

	"github.com/arteita/fretebot/internal/app/bootstrap"
	appconfig "github.com/arteita/fretebot/internal/config"
	"github.com/arteita/fretebot/internal/messaging"
)

var webhookBase string

func init() {
	rootCmd.AddCommand(instanceCmd)
	instanceCmd.AddCommand(
		instanceCreateCmd,
		instanceConnectCmd,
		instanceStatusCmd,
		instanceRestartCmd,
		instanceLogoutCmd,
		instanceDeleteCmd,
		instanceSetWebhookCmd,
		instanceWebhookCmd,
		instanceListCmd,
	)
	instanceSetWebhookCmd.Flags().StringVar(&webhookBase, "base-url", "", "public base URL of the API (defaults to PUBLIC_BASE_URL)")
}

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage the self-hosted WhatsApp instance",
	Long: `Manage the Evolution instance named by EVOLUTION_INSTANCE.

Examples:
  # Pair a new device
  fretectl instance create
  fretectl instance connect

  # Point the instance webhook at the API
  fretectl instance set-webhook --base-url https://frete.example.com`,
}

var instanceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the instance on the gateway",
	RunE: withEvolution(func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error {
		raw, err := c.CreateInstance(ctx)
		if err != nil {
			return err
		}
		return printRaw(cmd.OutOrStdout(), raw)
	}),
}

var instanceConnectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Request a pairing code and render it as a QR code",
	RunE: withEvolution(func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error {
		code, err := c.Connect(ctx)
		if err != nil {
			return err
		}
		return renderPairing(cmd.OutOrStdout(), code)
	}),
}

var instanceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the instance connection state",
	RunE: withEvolution(func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error {
		state, err := c.ConnectionState(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c.Instance(), state)
		return nil
	}),
}

var instanceRestartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Restart the device session",
	RunE: withEvolution(func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error {
		return done(cmd, "restarted", c.RestartInstance(ctx))
	}),
}

var instanceLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Unlink the paired device",
	RunE: withEvolution(func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error {
		return done(cmd, "logged out", c.LogoutInstance(ctx))
	}),
}

var instanceDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Remove the instance from the gateway",
	RunE: withEvolution(func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error {
		return done(cmd, "deleted", c.DeleteInstance(ctx))
	}),
}

var instanceSetWebhookCmd = &cobra.Command{
	Use:   "set-webhook",
	Short: "Point the instance webhook at the API",
	RunE: withEvolution(func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error {
		target, err := webhookURL(webhookBase, loadConfig().PublicBaseURL)
		if err != nil {
			return err
		}
		if err := c.SetWebhook(ctx, target, messaging.WebhookEvents); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "webhook set to %s\n", target)
		return nil
	}),
}

var instanceWebhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Show the instance webhook settings",
	RunE: withEvolution(func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error {
		raw, err := c.FindWebhook(ctx)
		if err != nil {
			return err
		}
		return printRaw(cmd.OutOrStdout(), raw)
	}),
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every instance on the gateway",
	RunE: withEvolution(func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error {
		raw, err := c.FetchInstances(ctx)
		if err != nil {
			return err
		}
		return printRaw(cmd.OutOrStdout(), raw)
	}),
}

type evolutionRunner func(ctx context.Context, cmd *cobra.Command, c *messaging.EvolutionClient) error

// withEvolution builds the instance client from the environment and bounds
// the call by the --timeout flag.
func withEvolution(run evolutionRunner) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		client, err := evolutionClient(loadConfig())
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()
		return run(ctx, cmd, client)
	}
}

func evolutionClient(cfg *appconfig.Config) (*messaging.EvolutionClient, error) {
	evo := bootstrap.EnvProviderConfig(cfg).Evolution
	if evo == nil {
		return nil, errors.New("EVOLUTION_API_URL, EVOLUTION_API_KEY and EVOLUTION_INSTANCE must be set")
	}
	return messaging.NewEvolutionClient(*evo, &http.Client{Timeout: timeout}), nil
}

// webhookURL joins the public base URL with the webhook path. An explicit
// flag wins over the environment.
func webhookURL(flagBase, envBase string) (string, error) {
	base := strings.TrimSpace(flagBase)
	if base == "" {
		base = strings.TrimSpace(envBase)
	}
	if base == "" {
		return "", errors.New("no base URL: pass --base-url or set PUBLIC_BASE_URL")
	}
	return strings.TrimRight(base, "/") + messaging.WebhookPath, nil
}

func renderPairing(w io.Writer, code *messaging.PairingCode) error {
	if code.Empty() {
		return errors.New("gateway returned no pairing code; the instance may already be connected")
	}
	if code.Code != "" {
		qrterminal.GenerateHalfBlock(code.Code, qrterminal.L, w)
	}
	if code.PairingCode != "" {
		fmt.Fprintf(w, "pairing code: %s\n", code.PairingCode)
	}
	if code.Code == "" && code.PairingCode == "" {
		fmt.Fprintln(w, "QR image available as a data URL; open it in a browser:")
		fmt.Fprintln(w, code.Base64)
	}
	return nil
}

func printRaw(w io.Writer, raw json.RawMessage) error {
	if len(raw) == 0 {
		fmt.Fprintln(w, "{}")
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		_, err = fmt.Fprintln(w, string(raw))
		return err
	}
	return printJSON(w, v)
}

func done(cmd *cobra.Command, what string, err error) error {
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), what)
	return nil
}
