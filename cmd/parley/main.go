package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/parleyhq/parley/chat"
	"github.com/parleyhq/parley/chat/orchestrator"
	"github.com/parleyhq/parley/chat/tools"
	"github.com/parleyhq/parley/internal/profile"
	"github.com/parleyhq/parley/internal/version"
	"github.com/parleyhq/parley/ledger"
	"github.com/parleyhq/parley/llm"
	"github.com/parleyhq/parley/memory"
	"github.com/parleyhq/parley/server"
	apiv1 "github.com/parleyhq/parley/server/router/api/v1"
	"github.com/parleyhq/parley/settings"
	"github.com/parleyhq/parley/store"
	"github.com/parleyhq/parley/store/db"
	"github.com/parleyhq/parley/vfs"
)

var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: `An LLM chat service with tool approval gating, per-call cost accounting, and A/B preference probing.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Only load .env for direct binary execution (not when running as a
		// systemd service, which supplies its own environment).
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		dbDriver, err := db.NewDBDriver(instanceProfile)
		if err != nil {
			slog.Error("failed to create db driver", "error", err)
			return
		}
		storeInstance := store.New(dbDriver)
		if err := storeInstance.Migrate(ctx); err != nil {
			slog.Error("failed to migrate", "error", err)
			return
		}

		s, chatSvc, err := buildServer(ctx, instanceProfile, storeInstance)
		if err != nil {
			slog.Error("failed to build server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		signal.Notify(c, terminationSignals...)
		go func() {
			<-c
			s.Shutdown(ctx)
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			chatSvc.Flush(flushCtx)
			flushCancel()
			if err := storeInstance.Close(); err != nil {
				slog.Error("failed to close store", "error", err)
			}
			cancel()
		}()

		printGreetings(instanceProfile)
		if err := s.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("failed to start server", "error", err)
			return
		}

		<-ctx.Done()
	},
}

// buildServer hydrates every domain service from storage and assembles the
// orchestrator and the HTTP layer around them.
func buildServer(ctx context.Context, instanceProfile *profile.Profile, storeInstance *store.Store) (*server.Server, *chat.Service, error) {
	chatSvc := chat.NewService(storeInstance)
	if err := chatSvc.Load(ctx); err != nil {
		return nil, nil, err
	}
	vfsSvc := vfs.NewService(storeInstance)
	if err := vfsSvc.Load(ctx); err != nil {
		return nil, nil, err
	}
	memorySvc := memory.NewService(storeInstance)
	if err := memorySvc.Load(ctx); err != nil {
		return nil, nil, err
	}
	settingsRepo := settings.NewRepository(storeInstance)
	if err := settingsRepo.Load(ctx); err != nil {
		return nil, nil, err
	}

	current := settingsRepo.Get()
	bank := ledger.New(0)
	bank.SetBalance(current.Balance, current.LedgerHistory)
	bank.OnTouch(func(balance float64, history []ledger.Entry) {
		err := settingsRepo.Update(context.Background(), func(s *settings.Settings) {
			s.Balance = balance
			s.LedgerHistory = history
		})
		if err != nil {
			slog.Error("failed to persist balance", "error", err)
		}
	})

	llmService, err := llm.NewService(&llm.Config{
		Provider: instanceProfile.LLMProvider,
		Model:    instanceProfile.LLMModel,
		APIKey:   instanceProfile.LLMAPIKey,
		BaseURL:  instanceProfile.LLMBaseURL,
		Timeout:  instanceProfile.LLMTimeout,
	})
	if err != nil {
		return nil, nil, err
	}

	calculator, err := tools.NewCalculator()
	if err != nil {
		return nil, nil, err
	}
	base := []tools.Tool{
		calculator,
		tools.NewWebSearch(instanceProfile.SearchEndpoint, instanceProfile.SearchAPIKey),
		tools.NewImageGenerator(instanceProfile.MediaAPIKey, instanceProfile.MediaBaseURL, ""),
		tools.NewAudioGenerator(instanceProfile.MediaAPIKey, instanceProfile.MediaBaseURL),
	}
	base = append(base, tools.FSTools(vfsSvc)...)
	registry := tools.NewRegistry(base, tools.MemoryTools(memorySvc))

	credentialed := func(tool string) bool {
		creds := settingsRepo.Get().Credentials
		switch tool {
		case tools.ToolWebSearch:
			return creds.Search != ""
		case tools.ToolGenerateImage:
			return creds.Image != ""
		case tools.ToolGenerateAudio:
			return creds.Audio != ""
		default:
			return false
		}
	}
	executor := tools.NewExecutor(registry, credentialed, slog.Default())

	o := orchestrator.New(llmService, chatSvc, registry, executor, settingsRepo, memorySvc, bank,
		orchestrator.Config{
			Model:       instanceProfile.LLMModel,
			InputPrice:  instanceProfile.InputPrice,
			OutputPrice: instanceProfile.OutputPrice,
		})

	api := apiv1.NewAPIV1Service(o, chatSvc, vfsSvc, memorySvc, settingsRepo, bank)
	return server.NewServer(instanceProfile, api), chatSvc, nil
}

func init() {
	viper.SetDefault("mode", "dev")
	viper.SetDefault("driver", "sqlite")
	viper.SetDefault("port", 28090)

	rootCmd.PersistentFlags().String("mode", "dev", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 28090, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "sqlite", "database driver (sqlite, postgres)")
	rootCmd.PersistentFlags().String("dsn", "", "database source name (aka. DSN)")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("parley")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(profile *profile.Profile) {
	fmt.Printf("Parley %s started successfully!\n", profile.Version)

	if profile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if profile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Database: %s\n", profile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", profile.Data)
	fmt.Printf("Database driver: %s\n", profile.Driver)
	fmt.Printf("Mode: %s\n", profile.Mode)
	if len(profile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", profile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", profile.Addr, profile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
