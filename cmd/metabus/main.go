// Copyright (c) 2026, the metabus contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/avhub/metabus/internal/buildinfo"
	"github.com/avhub/metabus/internal/config"
	"github.com/avhub/metabus/internal/database"
	"github.com/avhub/metabus/internal/models"
	"github.com/avhub/metabus/internal/services/metadata"
)

func main() {
	config.InitDefaultLogger(buildinfo.Version)

	var rootCmd = &cobra.Command{
		Use:   "metabus",
		Short: "Movie metadata resolver with a layered cache",
		Long: `metabus resolves movie metadata, magnet links, and performer
profiles, either by scraping the origin site behind a local sqlite cache or
by proxying a hosted metadata API.`,
	}

	rootCmd.Version = buildinfo.Version

	rootCmd.AddCommand(RunSearchCommand())
	rootCmd.AddCommand(RunMovieCommand())
	rootCmd.AddCommand(RunMagnetsCommand())
	rootCmd.AddCommand(RunStarCommand())
	rootCmd.AddCommand(RunCacheCommand())
	rootCmd.AddCommand(RunVersionCommand(buildinfo.Version))
	rootCmd.AddCommand(RunGenerateConfigCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads config, opens the database, and builds the resolution client.
func setup(configDir, dataDir string) (*config.AppConfig, *sql.DB, metadata.Client, error) {
	cfg, err := config.New(configDir, buildinfo.Version)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if dataDir != "" {
		cfg.SetDataDir(dataDir)
	}
	cfg.ApplyLogConfig()

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open database: %w", err)
	}

	return cfg, db, metadata.NewClient(cfg.Config, db), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	cmd.Println(string(out))
	return nil
}

func RunSearchCommand() *cobra.Command {
	var (
		configDir   string
		dataDir     string
		page        int
		filterType  string
		filterValue string
		uncensored  bool
	)

	command := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Search movies by keyword, filter, or recency",
		Long: `Search movies. With a keyword the origin is always queried and
results are cached. With --filter-type/--filter-value the local cache is
browsed without any origin traffic. With neither, the most recently cached
movies are listed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, client, err := setup(configDir, dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			query := models.SearchQuery{
				FilterType:     models.FilterKind(filterType),
				FilterValue:    filterValue,
				UncensoredOnly: uncensored,
				Page:           page,
			}
			if len(args) > 0 {
				query.Keyword = args[0]
			}

			result, err := client.SearchMovies(cmd.Context(), query)
			if err != nil {
				return err
			}
			return printJSON(cmd, result)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the cache database")
	command.Flags().IntVar(&page, "page", 1, "result page")
	command.Flags().StringVar(&filterType, "filter-type", "", "browse the cache by attribute: star, genre, director, studio, label, series")
	command.Flags().StringVar(&filterValue, "filter-value", "", "attribute value for --filter-type")
	command.Flags().BoolVar(&uncensored, "uncensored", false, "search the uncensored catalog")

	return command
}

func RunMovieCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "movie <id>",
		Short: "Resolve the full record for one movie id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, client, err := setup(configDir, dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			movie, err := client.GetMovie(cmd.Context(), args[0])
			if err != nil {
				if metadata.IsNotFound(err) {
					return fmt.Errorf("no movie found for id %q", args[0])
				}
				return err
			}
			return printJSON(cmd, movie)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the cache database")

	return command
}

func RunMagnetsCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "magnets <id>",
		Short: "List magnet links for one movie id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, client, err := setup(configDir, dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			magnets, err := client.GetMagnets(cmd.Context(), args[0])
			if err != nil {
				if metadata.IsNotFound(err) {
					return fmt.Errorf("no movie found for id %q", args[0])
				}
				return err
			}
			return printJSON(cmd, magnets)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the cache database")

	return command
}

func RunStarCommand() *cobra.Command {
	var (
		configDir string
		dataDir   string
		search    bool
	)

	command := &cobra.Command{
		Use:   "star <id | name>",
		Short: "Resolve a performer profile or search performers by name",
		Long: `Resolve one performer profile by id, or with --search list cached
performers whose name contains the given fragment.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, client, err := setup(configDir, dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			if search {
				stars, err := client.SearchStars(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, stars)
			}

			star, err := client.GetStar(cmd.Context(), args[0])
			if err != nil {
				if metadata.IsNotFound(err) {
					return fmt.Errorf("no performer found for id %q", args[0])
				}
				return err
			}
			return printJSON(cmd, star)
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&dataDir, "data-dir", "", "data directory for the cache database")
	command.Flags().BoolVar(&search, "search", false, "treat the argument as a name fragment and search performers")

	return command
}

// resolverFromClient extracts the cache-owning resolver; external mode has
// no local cache to manage.
func resolverFromClient(client metadata.Client) (*metadata.Resolver, error) {
	resolver, ok := client.(*metadata.Resolver)
	if !ok {
		return nil, fmt.Errorf("cache commands require internal mode (set mode = \"internal\" in config.toml)")
	}
	return resolver, nil
}

func RunCacheCommand() *cobra.Command {
	var configDir, dataDir string

	command := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the local cache",
	}

	command.PersistentFlags().StringVar(&configDir, "config-dir", "", "config directory or file path (defaults to OS-specific location)")
	command.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory for the cache database")

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show cache metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, client, err := setup(configDir, dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			resolver, err := resolverFromClient(client)
			if err != nil {
				return err
			}
			cacheStats, err := resolver.CacheStats(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, cacheStats)
		},
	}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete expired cache records",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, client, err := setup(configDir, dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			resolver, err := resolverFromClient(client)
			if err != nil {
				return err
			}
			deleted, err := resolver.CacheCleanup(cmd.Context())
			if err != nil {
				return err
			}
			log.Info().Int64("deleted", deleted).Msg("cache cleanup finished")
			cmd.Printf("Deleted %d expired records\n", deleted)
			return nil
		},
	}

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Delete every cached record",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, client, err := setup(configDir, dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			resolver, err := resolverFromClient(client)
			if err != nil {
				return err
			}
			deleted, err := resolver.CacheFlush(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Deleted %d records\n", deleted)
			return nil
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "Show recent search keywords",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, client, err := setup(configDir, dataDir)
			if err != nil {
				return err
			}
			defer db.Close()

			resolver, err := resolverFromClient(client)
			if err != nil {
				return err
			}
			keywords, err := resolver.RecentSearches(cmd.Context(), 20)
			if err != nil {
				return err
			}
			return printJSON(cmd, keywords)
		},
	}

	command.AddCommand(stats, cleanup, flush, history)
	return command
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of metabus",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting a resolution.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/metabus/config.toml
- Windows: %APPDATA%\metabus\config.toml

You can specify either a directory path or a direct file path:
- Directory: metabus generate-config --config-dir /path/to/config/
- File: metabus generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if configDir != "" {
				if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
					configPath = configDir
				} else if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
					configPath = configDir
				} else {
					configPath = filepath.Join(configDir, "config.toml")
				}
			} else {
				defaultDir := config.GetDefaultConfigDir()
				configPath = filepath.Join(defaultDir, "config.toml")
			}

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}
