// Downloader CLI — инструмент командной строки для управления
// загрузками через HTTP API демона.
//
// Использование:
//
//	downloader [--api-url URL] [--json|--yaml] <command> [flags]
//
// Команды:
//
//	enqueue   Поставить загрузку в очередь
//	list      Список загрузок
//	show      Детали загрузки
//	cancel    Отменить загрузку (--all — все)
//	rm        Удалить запись (--all, --delete-file)
//	watch     Прогресс загрузок
//	results   Поток финальных результатов
//	stats     Загрузка планировщика
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Downloader/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool
	var yamlOutput bool

	defaultURL := os.Getenv("DOWNLOADER_API_URL")
	if defaultURL == "" {
		defaultURL = "http://localhost:8080"
	}

	rootCmd := &cobra.Command{
		Use:           "downloader",
		Short:         "Downloader CLI — manage downloads",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput && yamlOutput {
				return errors.New("--json and --yaml are mutually exclusive")
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", defaultURL, "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&yamlOutput, "yaml", false, "Output in YAML format")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL) }
	outputFn := func() *cli.Output {
		switch {
		case jsonOutput:
			return cli.NewOutput(cli.FormatJSON)
		case yamlOutput:
			return cli.NewOutput(cli.FormatYAML)
		default:
			return cli.NewOutput(cli.FormatTable)
		}
	}

	rootCmd.AddCommand(cli.Commands(clientFn, outputFn)...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
