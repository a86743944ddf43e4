package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lromero/chatvault/internal/archive"
	"github.com/lromero/chatvault/internal/bus"
	"github.com/lromero/chatvault/internal/config"
	"github.com/lromero/chatvault/internal/engine"
	"github.com/lromero/chatvault/internal/redis"
	"github.com/lromero/chatvault/internal/replies"
	"github.com/lromero/chatvault/internal/server"
	"github.com/lromero/chatvault/internal/session"
	"github.com/lromero/chatvault/internal/whatsapp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatvault bot",
	RunE:  runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Status server port (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

// busSender routes engine replies through the outbound side of the bus so
// the transport consumes them from its subscription, mirroring the inbound
// decoupling.
type busSender struct {
	bus *bus.MessageBus
}

func (s busSender) Send(_ context.Context, contactID, text string) error {
	s.bus.PublishOutbound(bus.OutboundMessage{ContactID: contactID, Body: text})
	return nil
}

func runServe(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	fmt.Printf("🤖 Starting chatvault (trigger %q, session ttl %s)...\n",
		cfg.Trigger, cfg.SessionTTL())

	if redis.Init(redis.Config{URL: cfg.Redis.URL, Password: cfg.Redis.Password, DB: cfg.Redis.DB}) {
		defer redis.Close()
	}

	msgBus := bus.NewMessageBus()

	adapter, err := whatsapp.New(cfg.WhatsApp.DBPath, msgBus)
	if err != nil {
		return fmt.Errorf("setting up whatsapp: %w", err)
	}

	table, err := replies.Load(cfg.RepliesFile)
	if err != nil {
		return fmt.Errorf("loading replies: %w", err)
	}

	registry := session.NewRegistry(cfg.SessionTTL(), nil)
	store := archive.NewStore(cfg.ArchiveDir)

	eng := engine.New(engine.Config{
		Bus:      msgBus,
		Registry: registry,
		Store:    store,
		Trigger:  cfg.Trigger,
		Replies:  table,
		Sender:   busSender{bus: msgBus},
	})

	srv := server.New(registry, eng)
	eng.SetOnActivity(srv.Broadcast)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgBus.Subscribe(func(msg bus.OutboundMessage) {
		if err := adapter.Send(ctx, msg.ContactID, msg.Body); err != nil {
			log.Printf("[Serve] Outbound send to %s failed: %v", msg.ContactID, err)
		}
	})
	go msgBus.DispatchOutbound(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nShutting down...")
		adapter.Disconnect()
		registry.Stop()
		shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shCancel()
		srv.Shutdown(shCtx)
		cancel()
	}()

	errCh := make(chan error, 2)
	go func() {
		eng.Run(ctx)
		errCh <- nil
	}()
	go func() {
		errCh <- srv.Start(cfg.Server.Host, cfg.Server.Port)
	}()

	if err := adapter.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to whatsapp: %w", err)
	}
	log.Printf("[Serve] Archiving to %s", store.Root())

	return <-errCh
}
