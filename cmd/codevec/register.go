package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/embedhq/codevec/internal/config"
	"github.com/embedhq/codevec/internal/domain"
	"github.com/embedhq/codevec/internal/repository/registry"
)

// register-account and register-repo seed the repository registry from the
// command line. There is no admin API; rows go straight into the SQLite
// file, so point them at the same registry path the server uses.

var (
	accountName  string
	accountToken string
)

var registerAccountCmd = &cobra.Command{
	Use:   "register-account",
	Short: "Add a Git account to the repository registry",
	RunE:  runRegisterAccount,
}

var (
	repoName    string
	repoURL     string
	repoBranch  string
	repoSecret  string
	repoAccount int64
	repoProject int64
	repoInclude []string
	repoExclude []string
)

var registerRepoCmd = &cobra.Command{
	Use:   "register-repo",
	Short: "Add a repository to the registry",
	RunE:  runRegisterRepo,
}

func init() {
	registerAccountCmd.Flags().StringVar(&accountName, "name", "", "account name (required)")
	registerAccountCmd.Flags().StringVar(&accountToken, "token", "", "access token for the Git API (required)")
	_ = registerAccountCmd.MarkFlagRequired("name")
	_ = registerAccountCmd.MarkFlagRequired("token")

	registerRepoCmd.Flags().StringVar(&repoName, "name", "", "repository name, e.g. acme/widget (required)")
	registerRepoCmd.Flags().StringVar(&repoURL, "url", "", "repository URL (required)")
	registerRepoCmd.Flags().StringVar(&repoBranch, "branch", "main", "tracked branch")
	registerRepoCmd.Flags().StringVar(&repoSecret, "secret", "", "webhook HMAC secret (required)")
	registerRepoCmd.Flags().Int64Var(&repoAccount, "account", 0, "git account id (required)")
	registerRepoCmd.Flags().Int64Var(&repoProject, "project", 0, "project id")
	registerRepoCmd.Flags().StringSliceVar(&repoInclude, "include", nil, "include path patterns (regexp)")
	registerRepoCmd.Flags().StringSliceVar(&repoExclude, "exclude", nil, "exclude path patterns (regexp)")
	_ = registerRepoCmd.MarkFlagRequired("name")
	_ = registerRepoCmd.MarkFlagRequired("url")
	_ = registerRepoCmd.MarkFlagRequired("secret")
	_ = registerRepoCmd.MarkFlagRequired("account")
}

func runRegisterAccount(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	id, err := reg.UpsertAccount(cmd.Context(), domain.GitAccount{
		Name:        accountName,
		AccessToken: accountToken,
		IsActive:    true,
	})
	if err != nil {
		return fmt.Errorf("register account: %w", err)
	}

	fmt.Printf("Registered git account %q with id %d\n", accountName, id)
	return nil
}

func runRegisterRepo(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	reg, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	id, err := reg.UpsertRepository(cmd.Context(), domain.Repository{
		ProjectID:     repoProject,
		GitAccountID:  repoAccount,
		Name:          repoName,
		URL:           repoURL,
		Branch:        repoBranch,
		WebhookSecret: repoSecret,
		FilePatterns:  domain.FilePatterns{Include: repoInclude, Exclude: repoExclude},
		IsActive:      true,
	})
	if err != nil {
		return fmt.Errorf("register repository: %w", err)
	}

	fmt.Printf("Registered repository %q with id %d\n", repoName, id)
	fmt.Printf("Webhook path: /webhooks/github/%d\n", id)
	return nil
}
