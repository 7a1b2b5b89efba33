package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jholhewres/sonarbot/pkg/sonarbot/config"
)

// newSetupCmd creates the `sonarbot setup` command for interactive
// configuration.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactive setup wizard",
		Long: `Starts an interactive wizard to create your initial config.yaml.
Asks for the Telegram bot token, your Telegram user id, and the Perplexity
API key. The key goes into the OS keyring when available, never into the
config file.

Examples:
  sonarbot setup`,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("setup needs an interactive terminal; write config.yaml by hand for non-interactive installs")
	}

	cfg := config.DefaultConfig()

	var (
		token   string
		userID  string
		apiKey  string
		model   = cfg.Perplexity.Model
		keyring = config.KeyringAvailable()
	)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Telegram bot token").
				Description("From @BotFather (looks like 123456:ABC-DEF...).").
				EchoMode(huh.EchoModePassword).
				Value(&token).
				Validate(requireNonEmpty("bot token")),

			huh.NewInput().
				Title("Your Telegram user id").
				Description("The only user the bot will answer. Get it from @userinfobot.").
				Value(&userID).
				Validate(func(s string) error {
					id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
					if err != nil || id <= 0 {
						return fmt.Errorf("enter a numeric Telegram user id")
					}
					return nil
				}),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Perplexity API key").
				Description("From https://www.perplexity.ai/settings/api.").
				EchoMode(huh.EchoModePassword).
				Value(&apiKey).
				Validate(requireNonEmpty("API key")),

			huh.NewSelect[string]().
				Title("Perplexity model").
				Options(
					huh.NewOption("sonar (fast, search-grounded)", "sonar"),
					huh.NewOption("sonar-pro (deeper answers)", "sonar-pro"),
					huh.NewOption("sonar-reasoning", "sonar-reasoning"),
				).
				Value(&model),
		),
	)

	if err := form.Run(); err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	cfg.Telegram.Token = token
	cfg.Telegram.AllowedUserID, _ = strconv.ParseInt(strings.TrimSpace(userID), 10, 64)
	cfg.Perplexity.Model = model

	// Store the key in the OS keyring when one is available; the config
	// file only ever gets the ${PERPLEXITY_API_KEY} reference.
	if keyring {
		if err := config.StoreKeyring(apiKey); err != nil {
			fmt.Printf("Keyring storage failed (%v); set %s in your environment instead.\n",
				err, config.EnvAPIKey)
		} else {
			fmt.Println("API key stored in the OS keyring.")
		}
	} else {
		fmt.Printf("No OS keyring available; set %s in your environment or .env file.\n",
			config.EnvAPIKey)
	}
	cfg.Perplexity.APIKey = "${" + config.EnvAPIKey + "}"

	path, _ := cmd.Root().PersistentFlags().GetString("config")
	if path == "" {
		path = config.DefaultPath
	}
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("\nConfiguration written to %s\n", path)
	fmt.Println("Start the bot with: sonarbot serve")
	return nil
}

func requireNonEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}
