package cmd

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/VoTanTai-dp/smart-village-sub000/internal/config"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/database"
	"github.com/VoTanTai-dp/smart-village-sub000/internal/transcoder"
	"github.com/spf13/cobra"
)

var commandCmd = &cobra.Command{
	Use:   "command [name] [args]",
	Short: "Run one-time command (" + strings.Join(commandNames(), ", ") + ")",
	RunE:  runCommand,
}

// oneShot commands take the remaining positional args.
var oneShot = map[string]func(cmd *cobra.Command, args []string) error{
	"migrate": func(cmd *cobra.Command, _ []string) error {
		return runMigrateUp(cmd, nil)
	},
	"migrate-down": func(cmd *cobra.Command, _ []string) error {
		return runMigrateDown(cmd, nil)
	},
	"migrate-create": func(_ *cobra.Command, args []string) error {
		name := ""
		if len(args) > 0 {
			name = args[0]
		} else {
			fmt.Print("Enter migration name: ")
			_, _ = fmt.Scanln(&name)
		}
		if name == "" {
			return errors.New("migration name required")
		}
		return database.CreateMigration(name)
	},
	"check-ffmpeg": func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if err := transcoder.CheckInstallation(cfg.Transcoder.FFmpegPath); err != nil {
			return err
		}
		fmt.Printf("%s ok\n", cfg.Transcoder.FFmpegPath)
		return nil
	},
}

func commandNames() []string {
	names := make([]string, 0, len(oneShot))
	for n := range oneShot {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func init() {
	rootCmd.AddCommand(commandCmd)
}

func runCommand(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		fmt.Println("available:", strings.Join(commandNames(), ", "))
		return nil
	}
	run, ok := oneShot[args[0]]
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return run(cmd, args[1:])
}
