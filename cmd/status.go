package cmd

import (
	"context"
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lromero/chatvault/internal/config"
	"github.com/lromero/chatvault/internal/redis"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show chatvault status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	configPath := config.GetConfigPath()
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("🤖 chatvault Status")
	fmt.Println()
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("Archive dir: %s\n", cfg.ArchiveDir)
	fmt.Printf("Trigger: %q\n", cfg.Trigger)
	fmt.Printf("Session TTL: %s\n", cfg.SessionTTL())
	fmt.Printf("Status server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)

	fmt.Println("\nActive sessions:")
	if !redis.Init(redis.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB}) {
		fmt.Println("  (Redis not configured; ask the running bot via GET /sessions)")
		return nil
	}
	defer redis.Close()

	contacts := redis.ActiveSessions(context.Background())
	if len(contacts) == 0 {
		fmt.Println("  none")
		return nil
	}
	for _, c := range contacts {
		fmt.Printf("  %s\n", c)
	}
	return nil
}
