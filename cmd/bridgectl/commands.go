package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tradebridge/internal/models"
	"tradebridge/internal/provider"
	"tradebridge/pkg/crypto"
)

// newRootCmd собирает дерево команд bridgectl
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "bridgectl",
		Short:        "Operator tools for the account bridge server",
		SilenceUsage: true,
	}

	root.AddCommand(
		newGenKeyCmd(),
		newSealTokenCmd(),
		newHashPasswordCmd(),
		newCatalogCmd(),
	)
	return root
}

func newGenKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-key",
		Short: "Generate a 32-byte ENCRYPTION_KEY",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := crypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newSealTokenCmd() *cobra.Command {
	var key string

	cmd := &cobra.Command{
		Use:   "seal-token [token]",
		Short: "Encrypt a provider token for METAAPI_TOKEN (enc:...)",
		Long: `Encrypts the token with AES-256-GCM. Without an argument the token
is read from stdin, so it does not end up in shell history.

Example:
  bridgectl seal-token --key "$ENCRYPTION_KEY" < token.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			sealed, err := crypto.Seal(token, key)
			if err != nil {
				return fmt.Errorf("seal token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sealed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "ENCRYPTION_KEY (32 bytes)")
	cmd.MarkFlagRequired("key")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Hash a password for DEBUG_PASSWORD_HASH",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := argOrStdin(cmd, args)
			if err != nil {
				return err
			}
			hash, err := crypto.HashPasswordWithCost(password, cost)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", crypto.DefaultCost, "bcrypt cost")
	return cmd
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect the static account catalog",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a catalog file (embedded catalog without path)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			catalog, err := provider.LoadCatalog(path)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, platform := range provider.StaticPlatforms {
				accounts := catalog.ForPlatform(platform)
				fmt.Fprintf(out, "%-12s %d\n", platform, len(accounts))
				for _, a := range accounts {
					fmt.Fprintf(out, "  %-16s %-24s %s %s\n", a.ID, a.Name, a.AccountClass, formatEquity(a))
				}
			}
			return nil
		},
	})
	return cmd
}

// argOrStdin берет значение из аргумента или первой строки stdin
func argOrStdin(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	value := strings.TrimRight(line, "\r\n")
	if value == "" {
		return "", fmt.Errorf("value is required (argument or stdin)")
	}
	return value, nil
}

func formatEquity(a models.Account) string {
	return fmt.Sprintf("%.2f %s", a.Equity, a.Currency)
}
