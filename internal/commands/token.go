package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hostmesh/hostmesh/internal/auth"
	"github.com/hostmesh/hostmesh/models"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage authentication tokens",
	Long:  `Generate service tokens for hosts and operators, and operator API keys`,
}

var generateHostTokenCmd = &cobra.Command{
	Use:   "host [host-id]",
	Short: "Generate a host service token",
	Long: `Generate a JWT service token for a host. The token's subject is the
host ID and it carries the host role, scoping it to registration,
heartbeats and session reporting.

Examples:
  # Generate a token for player-42-host
  hostmesh token host player-42-host`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerateHostToken,
}

var generateOperatorTokenCmd = &cobra.Command{
	Use:   "operator [name]",
	Short: "Generate an operator service token",
	Args:  cobra.ExactArgs(1),
	RunE:  runGenerateOperatorToken,
}

var generateAPIKeyCmd = &cobra.Command{
	Use:   "apikey",
	Short: "Generate an operator API key and its config hash",
	RunE:  runGenerateAPIKey,
}

func init() {
	tokenCmd.AddCommand(generateHostTokenCmd)
	tokenCmd.AddCommand(generateOperatorTokenCmd)
	tokenCmd.AddCommand(generateAPIKeyCmd)

	rootCmd.AddCommand(tokenCmd)
}

func runGenerateHostToken(cmd *cobra.Command, args []string) error {
	hostID := args[0]

	svc := auth.NewJWTService(cfg)
	token, err := svc.GenerateToken(hostID, "host-"+hostID, []models.Role{models.RoleHost})
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Printf("Host Token Generated\n")
	fmt.Printf("====================\n\n")
	fmt.Printf("Host ID: %s\n", hostID)
	fmt.Printf("\nToken:\n%s\n\n", token)
	fmt.Printf("Keep this token secure; it authenticates the host to the coordinator.\n")

	return nil
}

func runGenerateOperatorToken(cmd *cobra.Command, args []string) error {
	name := args[0]

	svc := auth.NewJWTService(cfg)
	token, err := svc.GenerateToken("operator:"+name, name, []models.Role{models.RoleOperator})
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	fmt.Printf("Operator Token Generated\n")
	fmt.Printf("========================\n\n")
	fmt.Printf("Operator: %s\n", name)
	fmt.Printf("\nToken:\n%s\n", token)

	return nil
}

func runGenerateAPIKey(cmd *cobra.Command, args []string) error {
	key, err := auth.GenerateAPIKey()
	if err != nil {
		return fmt.Errorf("failed to generate API key: %w", err)
	}

	hash, err := auth.HashAPIKey(key)
	if err != nil {
		return fmt.Errorf("failed to hash API key: %w", err)
	}

	fmt.Printf("API Key Generated\n")
	fmt.Printf("=================\n\n")
	fmt.Printf("Key (give to the operator, shown only once):\n%s\n\n", key)
	fmt.Printf("Add the hash to your config.yaml:\n")
	fmt.Printf("  security:\n")
	fmt.Printf("    api_key_hashes:\n")
	fmt.Printf("      - \"%s\"\n", hash)

	return nil
}
