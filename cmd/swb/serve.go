package main

import (
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/zulandar/switchboard/internal/bus"
	"github.com/zulandar/switchboard/internal/config"
	"github.com/zulandar/switchboard/internal/db"
	"github.com/zulandar/switchboard/internal/engine"
	"github.com/zulandar/switchboard/internal/gateway"
	"github.com/zulandar/switchboard/internal/notify"
	"github.com/zulandar/switchboard/internal/relay"
	"github.com/zulandar/switchboard/internal/session"
	"github.com/zulandar/switchboard/internal/store"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session manager and HTTP API",
		Long:  "Starts the session controller, message relay, and HTTP gateway. Runs until interrupted; live connections are closed without logging out so stored credentials stay valid.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "switchboard.yaml", "path to config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if cfg.LogFile.Path != "" {
		log.SetOutput(&lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
		})
	}

	gormDB, err := db.Connect(cfg.DB)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}

	st := store.New(gormDB)
	reg := session.NewRegistry()
	b := bus.New()

	rel, err := relay.New(relay.Opts{
		Registry:     reg,
		Store:        st,
		Bus:          b,
		DomainSuffix: cfg.Engine.DomainSuffix,
	})
	if err != nil {
		return err
	}

	ctrl, err := session.NewController(session.ControllerOpts{
		Registry:       reg,
		Engine:         eng,
		Store:          st,
		Bus:            b,
		Inbound:        rel,
		ReconnectDelay: time.Duration(cfg.Engine.ReconnectDelaySec) * time.Second,
		RetryDelay:     time.Duration(cfg.Engine.RetryDelaySec) * time.Second,
	})
	if err != nil {
		return err
	}

	srv, err := gateway.New(gateway.Opts{
		Controller: ctrl,
		Relay:      rel,
		Store:      st,
		Bus:        b,
		Port:       cfg.HTTP.Port,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if daemon, err := buildNotifyDaemon(cfg, b, st); err != nil {
		return err
	} else if daemon != nil {
		go daemon.Run(ctx)
	}

	log.Printf("swb: serving on :%d (engine %s, db %s)", cfg.HTTP.Port, cfg.Engine.Driver, cfg.DB.Driver)

	err = srv.Run(ctx)

	// Tear down without logout so sessions resume on the next start.
	ctrl.Shutdown()
	return err
}

// buildEngine selects the protocol engine from config. Only the built-in
// simulator ships today; real protocol drivers register here.
func buildEngine(cfg *config.Config) (engine.Engine, error) {
	switch cfg.Engine.Driver {
	case "sim":
		return engine.NewSimulator(time.Duration(cfg.Engine.Sim.ApprovalDelaySec) * time.Second), nil
	default:
		return nil, fmt.Errorf("swb: unknown engine driver %q", cfg.Engine.Driver)
	}
}

// buildNotifyDaemon assembles the ops notification daemon from config.
// Returns nil when no sink and no digest is enabled.
func buildNotifyDaemon(cfg *config.Config, b *bus.Bus, st *store.Store) (*notify.Daemon, error) {
	var sinks []notify.Notifier
	if cfg.Notify.Slack.Enabled {
		sink, err := notify.NewSlack(notify.SlackOpts{
			BotToken: cfg.Notify.Slack.BotToken,
			Channel:  cfg.Notify.Slack.Channel,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.Notify.Discord.Enabled {
		sink, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}

	digestCron := ""
	if cfg.Notify.Digest.Enabled {
		digestCron = cfg.Notify.Digest.Cron
	}
	if len(sinks) == 0 && digestCron == "" {
		return nil, nil
	}
	return notify.New(notify.Opts{Bus: b, Store: st, Sinks: sinks, DigestCron: digestCron})
}
