package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"fluxweb/internal/config"
	"fluxweb/internal/db"
	"fluxweb/internal/migrate"
	"fluxweb/internal/stub"
	"fluxweb/internal/web"
	"fluxweb/sdk/flux"
)

var rootCmd = &cobra.Command{
	Use:   "flux",
	Short: "Flux directory front end",
	Long: `Flux is a web front end for an organisation directory API.
- serve: run the HTML front end against a directory API.
- stub: run a local directory API backed by sqlite, for development and tests.
- list/show/delete: inspect directory records from the terminal.
- config show: print the effective configuration.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("FLUX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// Names used by earlier deployments.
	_ = viper.BindEnv("url", "FLUX_URL", "FLUX_API_URL")
	_ = viper.BindEnv("version", "FLUX_VERSION", "FLUX_API_VERSION")
	_ = viper.BindEnv("timeout", "FLUX_TIMEOUT", "TIMEOUT")
	_ = viper.BindEnv("secret-key", "FLUX_SECRET_KEY", "SECRET_KEY")
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "path to flux.yml")
	flags.String("url", "", "directory API base url")
	flags.String("version", "", "directory API version")
	flags.String("timeout", "", "per-request timeout (duration or seconds)")
	flags.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flags.Bool("log-json", false, "log as JSON")
	flags.Bool("json", false, "output JSON")
	for _, name := range []string{"config", "url", "version", "timeout", "log-level", "log-json", "json"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(stubCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig layers defaults, the optional config file, then env and flags.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if path := viper.GetString("config"); path != "" {
		fromFile, err := config.FromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = fromFile
	}
	if viper.IsSet("url") {
		cfg.Flux.URL = viper.GetString("url")
	}
	if viper.IsSet("version") {
		cfg.Flux.Version = viper.GetString("version")
	}
	if viper.IsSet("timeout") {
		d, err := config.ParseTimeout(viper.GetString("timeout"))
		if err != nil {
			return nil, err
		}
		cfg.Flux.Timeout = config.Duration(d)
	}
	if viper.IsSet("secret-key") {
		cfg.Server.SecretKey = viper.GetString("secret-key")
	}
	if viper.IsSet("addr") {
		cfg.Server.Addr = viper.GetString("addr")
	}
	if viper.IsSet("secure-cookies") {
		cfg.Server.SecureCookies = viper.GetBool("secure-cookies")
	}
	if viper.IsSet("per-second") {
		cfg.RateLimit.PerSecond = viper.GetInt("per-second")
	}
	if viper.IsSet("per-minute") {
		cfg.RateLimit.PerMinute = viper.GetInt("per-minute")
	}
	if viper.IsSet("log-level") {
		cfg.Log.Level = viper.GetString("log-level")
	}
	if viper.IsSet("log-json") {
		cfg.Log.JSON = viper.GetBool("log-json")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient(cfg *config.Config, logger hclog.Logger) (*flux.Client, error) {
	return flux.New(flux.Config{
		BaseURL: cfg.Flux.URL,
		Version: cfg.Flux.Version,
		Timeout: time.Duration(cfg.Flux.Timeout),
		Logger:  logger.Named("flux"),
	})
}

// withClient loads config and hands a directory client to fn.
func withClient(ctx context.Context, fn func(context.Context, *flux.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := newClient(cfg, cfg.Logger("flux-cli"))
	if err != nil {
		return err
	}
	return fn(ctx, c)
}

// listen serves handler until ctx is cancelled, then drains for up to five seconds.
func listen(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web front end",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Server.SecretKey == "" {
				return fmt.Errorf("a secret key is required (server.secret_key, FLUX_SECRET_KEY or SECRET_KEY)")
			}
			logger := cfg.Logger("flux")
			client, err := newClient(cfg, logger)
			if err != nil {
				return err
			}
			handler, err := web.New(web.Config{
				Client:        client,
				Logger:        logger.Named("web"),
				SecretKey:     cfg.Server.SecretKey,
				SecureCookies: cfg.Server.SecureCookies,
				PerSecond:     cfg.RateLimit.PerSecond,
				PerMinute:     cfg.RateLimit.PerMinute,
			})
			if err != nil {
				return err
			}
			logger.Info("serving front end", "addr", "http://"+cfg.Server.Addr, "api", cfg.Flux.URL+"/"+cfg.Flux.Version)
			return listen(cmd.Context(), cfg.Server.Addr, handler)
		},
	}
	cmd.Flags().String("addr", "", "listen address")
	cmd.Flags().Bool("secure-cookies", false, "mark cookies Secure and send HSTS")
	cmd.Flags().Int("per-second", 0, "requests per second per client (0 uses config)")
	cmd.Flags().Int("per-minute", 0, "requests per minute per client (0 uses config)")
	cmd.PreRun = func(cmd *cobra.Command, args []string) {
		for _, name := range []string{"addr", "secure-cookies", "per-second", "per-minute"} {
			_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
		}
	}
	return cmd
}

func stubCmd() *cobra.Command {
	var addr, workspace string
	cmd := &cobra.Command{
		Use:   "stub",
		Short: "Run a local directory API backed by sqlite",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := cfg.Logger("flux")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(cmd.Context(), conn); err != nil {
				return err
			}
			handler, err := stub.New(stub.Config{DB: conn, Version: cfg.Flux.Version, Logger: logger.Named("stub")})
			if err != nil {
				return err
			}
			logger.Info("serving directory stub", "addr", "http://"+addr+"/"+cfg.Flux.Version, "db", db.Path(workspace))
			return listen(cmd.Context(), addr, handler)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:3000", "listen address")
	cmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "workspace directory holding .flux")
	cmd.AddCommand(stubEventsCmd(&workspace))
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(out)
			return nil
		},
	})
	return cfgCmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
