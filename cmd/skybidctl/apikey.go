package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/skybid/internal/api/middleware"
	"github.com/kiranshivaraju/skybid/internal/config"
	"github.com/kiranshivaraju/skybid/internal/store"
	"github.com/kiranshivaraju/skybid/pkg/models"
	"github.com/spf13/cobra"
)

func (a *app) apiKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}
	cmd.AddCommand(a.apiKeyCreateCmd())
	return cmd
}

// apiKeyCreateCmd bootstraps keys. The first admin key has to come from here
// because POST /api/v1/admin/keys itself requires one.
func (a *app) apiKeyCreateCmd() *cobra.Command {
	var (
		account string
		name    string
		scopes  []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Mint a new API key and print it once",
		Long: `Mint a new API key bound to an account. The raw key is printed
once and only its hash is stored.

Examples:
  skybidctl apikey create --account 4f6c... --name ops --scope admin
  skybidctl apikey create --account 4f6c... --name app --scope client --scope pilot`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accountID, err := uuid.Parse(account)
			if err != nil {
				return fmt.Errorf("invalid --account: %w", err)
			}
			name = strings.TrimSpace(name)
			if name == "" {
				return errors.New("--name is required")
			}
			if len(scopes) == 0 {
				return errors.New("at least one --scope is required")
			}
			for _, sc := range scopes {
				if !models.IsValidScope(sc) {
					return fmt.Errorf("unknown scope %q", sc)
				}
			}

			return a.withBackend(cmd, func(_ *config.Config, b *backend) error {
				raw, key, err := mw.GenerateAPIKey(accountID, name, scopes)
				if err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				if err := b.store.CreateAPIKey(cmd.Context(), key); err != nil {
					if errors.Is(err, store.ErrDuplicateKey) {
						return fmt.Errorf("account already has a key named %q", name)
					}
					return fmt.Errorf("store key: %w", err)
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"id":         key.ID,
					"account_id": key.AccountID,
					"name":       key.Name,
					"key":        raw,
					"scopes":     key.Scopes,
				})
			})
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account ID the key acts as")
	cmd.Flags().StringVar(&name, "name", "", "label for the key, unique per account")
	cmd.Flags().StringArrayVar(&scopes, "scope", nil, "scope to grant (client, pilot, admin); repeatable")
	return cmd
}
