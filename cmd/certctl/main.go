package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/certfsm/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "certctl",
	Short: "Certificate lifecycle CLI",
	Long: `certctl is the command-line interface for the certificate
lifecycle service.

It registers domains, drives certificate operations (issue, renew,
revoke), and inspects the lifecycle state machine.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.certctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8000"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.certctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "lifecycle service URL (default http://localhost:8000)")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(issueCmd)
	rootCmd.AddCommand(renewCmd)
	rootCmd.AddCommand(revokeCmd)
	rootCmd.AddCommand(transitionCmd)
	rootCmd.AddCommand(fsmCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() (*client.Client, error) {
	return client.New(serverURL)
}

// ── add ──────────────────────────────────────────────────────────────────────

var addCmd = &cobra.Command{
	Use:   "add <domain>",
	Short: "Register a domain for certificate management",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		d, err := c.CreateDomain(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("add domain: %w", err)
		}
		fmt.Printf("✓ Domain registered: %s (state: %s)\n", d.Domain, d.State)
		return nil
	},
}

// ── list ─────────────────────────────────────────────────────────────────────

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all managed domains and their lifecycle states",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		domains, err := c.ListDomains(context.Background())
		if err != nil {
			return fmt.Errorf("list domains: %w", err)
		}
		if len(domains) == 0 {
			fmt.Println("No domains registered.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tSTATE")
		for _, d := range domains {
			fmt.Fprintf(w, "%s\t%s\n", d.Domain, d.State)
		}
		return w.Flush()
	},
}

// ── status ───────────────────────────────────────────────────────────────────

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status <domain>",
	Short: "Check the certificate status of a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		st, err := c.Status(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("check status: %w", err)
		}

		if statusFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		fmt.Printf("Domain:  %s\n", st.Domain)
		fmt.Printf("State:   %s\n", st.State)
		fmt.Printf("Status:  %s\n", st.Status)
		fmt.Printf("Valid:   %t\n", st.IsValid)
		if st.ExpiresAt != nil {
			fmt.Printf("Expires: %s (%s)\n",
				st.ExpiresAt.Format(time.RFC3339),
				humanizeUntil(*st.ExpiresAt))
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "Output format: text or json")
}

// humanizeUntil renders the time until t as "in 89 days" or "expired 3 days ago".
func humanizeUntil(t time.Time) string {
	d := time.Until(t)
	days := int(d.Hours() / 24)
	switch {
	case days > 0:
		return fmt.Sprintf("in %d days", days)
	case days < 0:
		return fmt.Sprintf("expired %d days ago", -days)
	default:
		return "within 24 hours"
	}
}

// ── issue / renew / revoke ───────────────────────────────────────────────────

var issueCmd = &cobra.Command{
	Use:   "issue <domain>",
	Short: "Request certificate issuance for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(args[0], "issue")
	},
}

var renewCmd = &cobra.Command{
	Use:   "renew <domain>",
	Short: "Request certificate renewal for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(args[0], "renew")
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <domain>",
	Short: "Request certificate revocation for a domain",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(args[0], "revoke")
	},
}

func runOperation(domain, op string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	var ack *client.OperationAck
	switch op {
	case "issue":
		ack, err = c.Issue(ctx, domain)
	case "renew":
		ack, err = c.Renew(ctx, domain)
	case "revoke":
		ack, err = c.Revoke(ctx, domain)
	}
	if err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%s %s: %s", op, domain, apiErr.Message)
		}
		return fmt.Errorf("%s %s: %w", op, domain, err)
	}

	fmt.Printf("✓ %s\n", ack.Message)
	fmt.Printf("  Previous state: %s\n\n", ack.PreviousState)
	fmt.Printf("The operation completes in the background. Check progress with:\n")
	fmt.Printf("  certctl status %s\n", domain)
	return nil
}

// ── transition ───────────────────────────────────────────────────────────────

var transitionCmd = &cobra.Command{
	Use:   "transition <domain> <event>",
	Short: "Apply a raw state-machine event to a domain",
	Long: `transition fires a single state-machine event against a domain,
bypassing the certificate authority. Intended for operators repairing
stuck records; normal certificate flows should use issue/renew/revoke.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		res, err := c.ApplyTransition(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("apply transition: %w", err)
		}
		fmt.Printf("✓ %s → %s\n", res.Domain, res.NewState)
		return nil
	},
}

// ── fsm ──────────────────────────────────────────────────────────────────────

var fsmCmd = &cobra.Command{
	Use:   "fsm",
	Short: "Inspect the certificate lifecycle state machine",
}

var fsmStatesCmd = &cobra.Command{
	Use:   "states",
	Short: "List all lifecycle states",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		states, err := c.States(context.Background())
		if err != nil {
			return fmt.Errorf("fetch states: %w", err)
		}
		for _, s := range states {
			fmt.Println(s)
		}
		return nil
	},
}

var fsmTransitionsCmd = &cobra.Command{
	Use:   "transitions [state]",
	Short: "List the transition table, or the transitions available from a state",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		ctx := context.Background()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		if len(args) == 1 {
			trs, err := c.TransitionsFrom(ctx, args[0])
			if err != nil {
				return fmt.Errorf("fetch transitions for %q: %w", args[0], err)
			}
			fmt.Fprintln(w, "TRIGGER\tDEST\tDESCRIPTION")
			for _, t := range trs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", t.Trigger, t.Dest, t.Description)
			}
			return w.Flush()
		}

		trs, err := c.Transitions(ctx)
		if err != nil {
			return fmt.Errorf("fetch transitions: %w", err)
		}
		fmt.Fprintln(w, "TRIGGER\tSOURCE\tDEST")
		for _, t := range trs {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.Trigger, t.Source, t.Dest)
		}
		return w.Flush()
	},
}

func init() {
	fsmCmd.AddCommand(fsmStatesCmd)
	fsmCmd.AddCommand(fsmTransitionsCmd)
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the certctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("certctl %s\n", version)
	},
}
