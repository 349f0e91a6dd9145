// Package cli wires the server's commands: serve (the default), init-db,
// and cert info/rotate.
package cli

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"remoteprompt-server/internal/certs"
	"remoteprompt-server/internal/config"
	"remoteprompt-server/internal/discovery"
	"remoteprompt-server/internal/jobs"
	"remoteprompt-server/internal/metrics"
	"remoteprompt-server/internal/notify"
	"remoteprompt-server/internal/runner"
	"remoteprompt-server/internal/server"
	"remoteprompt-server/internal/store"
	"remoteprompt-server/internal/stream"
)

const Version = "1.0.0"

var configFile string

func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "remoteprompt-server",
		Short:   "Remote prompt job server for AI CLI backends",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path")

	rootCmd.AddCommand(buildServeCommand())
	rootCmd.AddCommand(buildInitDBCommand())
	rootCmd.AddCommand(buildCertCommand())
	return rootCmd
}

func buildServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTPS server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
}

func serve() error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	gin.SetMode(cfg.GinMode)

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	broadcaster := stream.New()
	defer broadcaster.Shutdown()
	bridge := stream.NewBridge(broadcaster)
	defer bridge.Shutdown()

	registry := runner.NewRegistry(
		runner.NewClaude(st, cfg.TrustedDir),
		runner.NewCodex(st),
		runner.NewGemini(st),
	)
	collector := metrics.NewCollector()

	orch := jobs.New(jobs.Config{
		Store:    st,
		Registry: registry,
		Bridge:   bridge,
		Notifier: buildNotifier(cfg),
		Dispatch: func(task func()) { go task() },
		Metrics:  collector,
	})

	tlsFiles, err := server.ResolveTLS(cfg)
	if err != nil {
		return err
	}

	certParams := certs.Params{
		CertFile: cfg.CertFile,
		KeyFile:  cfg.KeyFile,
		Hostname: cfg.ServerHostname,
		IPs:      cfg.ServerSANIPs,
	}
	if tlsFiles.Mode == config.SSLModeSelfSigned {
		created, err := certs.Ensure(certParams)
		if err != nil {
			return fmt.Errorf("ensure certificate: %w", err)
		}
		if created {
			log.Printf("serve: generated self-signed certificate at %s", certParams.CertFile)
		}
	}

	var publisher *discovery.Publisher
	if cfg.BonjourEnabled {
		fingerprint := ""
		if tlsFiles.Mode == config.SSLModeSelfSigned {
			if fp, err := certs.Fingerprint(certParams.CertFile); err == nil {
				fingerprint = fp
			}
		}
		publisher = discovery.NewPublisher(discovery.Options{
			ServiceName: cfg.BonjourServiceName,
			Hostname:    cfg.ServerHostname,
			Port:        cfg.Port,
			SSLMode:     tlsFiles.Mode,
			Fingerprint: fingerprint,
		})
		if publisher.Start() {
			defer publisher.Shutdown()
		}
	}

	router := server.NewRouter(server.Deps{
		Store:        st,
		Registry:     registry,
		Orchestrator: orch,
		Broadcaster:  broadcaster,
		Metrics:      collector,
		APIKey:       cfg.APIKey,
		AllowedRoots: cfg.AllowedWorkspaceRoots,
		CertParams:   certParams,
		Discovery:    publisher,
		Version:      Version,
		CertFallback: tlsFiles.FallbackWarning,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("serve: listening on :%d (ssl_mode=%s)", cfg.Port, tlsFiles.Mode)
	return server.Run(ctx, cfg, tlsFiles, router)
}

// buildNotifier picks the notification transport: an HTTP relay when
// configured, direct APNs when credentials are present, otherwise none.
func buildNotifier(cfg config.Config) jobs.Notifier {
	if cfg.NotificationServerURL != "" {
		log.Printf("serve: notifications via relay %s", cfg.NotificationServerURL)
		return notify.NewRelayClient(cfg.NotificationServerURL)
	}
	if cfg.APNSKeyPath != "" && cfg.APNSKeyID != "" && cfg.APNSTeamID != "" && cfg.APNSBundleID != "" {
		client, err := notify.NewAPNSClient(cfg.APNSKeyPath, cfg.APNSKeyID, cfg.APNSTeamID, cfg.APNSBundleID, cfg.APNSEnvironment)
		if err != nil {
			log.Printf("serve: APNs disabled: %v", err)
			return nil
		}
		log.Printf("serve: notifications via APNs (%s)", cfg.APNSEnvironment)
		return client
	}
	log.Printf("serve: push notifications disabled")
	return nil
}

func buildInitDBCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-db",
		Short: "Create the SQLite database, schema, and a seed device",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			st, err := store.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()
			if _, err := st.UpsertDevice(cmd.Context(), "test-device-1", "dummy-token"); err != nil {
				return fmt.Errorf("seed device: %w", err)
			}
			log.Printf("init-db: database ready at %s", cfg.DBPath)
			return nil
		},
	}
}

func buildCertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Inspect or rotate the self-signed certificate",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "info",
			Short: "Print the active certificate details",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				details, err := certs.Info(cfg.CertFile)
				if err != nil {
					return err
				}
				fmt.Printf("Subject:     %s\n", details.Subject)
				fmt.Printf("Not before:  %s\n", details.NotBefore.Format(time.RFC3339))
				fmt.Printf("Not after:   %s\n", details.NotAfter.Format(time.RFC3339))
				fmt.Printf("DNS names:   %s\n", strings.Join(details.DNSNames, ", "))
				fmt.Printf("IPs:         %s\n", strings.Join(details.IPAddresses, ", "))
				fmt.Printf("Fingerprint: %s\n", details.Fingerprint)
				return nil
			},
		},
		&cobra.Command{
			Use:   "rotate",
			Short: "Rotate the self-signed certificate",
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(configFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				params := certs.Params{
					CertFile: cfg.CertFile,
					KeyFile:  cfg.KeyFile,
					Hostname: cfg.ServerHostname,
					IPs:      cfg.ServerSANIPs,
				}
				if err := certs.Rotate(params); err != nil {
					return err
				}
				fp, err := certs.Fingerprint(params.CertFile)
				if err != nil {
					return err
				}
				fmt.Printf("Rotated. New fingerprint: %s\n", fp)
				return nil
			},
		},
	)
	return cmd
}
