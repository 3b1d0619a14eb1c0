package cmd

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agentoven/ragjenkins/internal/config"
	"github.com/agentoven/ragjenkins/internal/index"
	"github.com/agentoven/ragjenkins/pkg/server"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ragjenkins",
	Short: "Index a codebase, search it, and let an agent drive Jenkins",
	Long: `ragjenkins indexes a ZIP archive of source code into a vector index and
runs a tool-using agent over it. The agent can search the code and, when
Jenkins credentials are configured, create jobs, trigger builds, poll their
status and read console output.

Common workflows:

  Index a codebase (replaces the collection):
    ragjenkins index ./project.zip --language python

  Search the index:
    ragjenkins search "where is the config parsed" -k 3

  Ask the agent:
    ragjenkins ask "run the tests and explain any failure" --job my-job

  Serve the web UI and API:
    ragjenkins serve --port 8501

Configuration:
  The server's environment variables apply (OPENAI_API_KEY, JENKINS_URL,
  JENKINS_USERNAME, JENKINS_API_TOKEN, VECTOR_STORE, ...). Values from
  $HOME/.ragjenkins.yaml or RAGJENKINS_* variables override them:
    openai_api_key, llm_model, embedding_provider, vector_store,
    vector_store_path, jenkins_url, jenkins_username, jenkins_api_token`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".ragjenkins")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "RAGJENKINS_VARNAME"
	viper.SetEnvPrefix("RAGJENKINS")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		log.Debug().Str("file", viper.ConfigFileUsed()).Msg("Using config file")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	if level, err := zerolog.ParseLevel(viper.GetString("log_level")); err == nil && level != zerolog.NoLevel {
		zerolog.SetGlobalLevel(level)
	}
}

// loadConfig reads the environment configuration and overlays viper values.
func loadConfig() *config.Config {
	cfg := config.Load()
	overlay(&cfg.OpenAI.APIKey, "openai_api_key")
	overlay(&cfg.OpenAI.ChatModel, "llm_model")
	overlay(&cfg.Embedding.Provider, "embedding_provider")
	overlay(&cfg.Vector.Store, "vector_store")
	overlay(&cfg.Vector.Path, "vector_store_path")
	overlay(&cfg.Jenkins.URL, "jenkins_url")
	overlay(&cfg.Jenkins.Username, "jenkins_username")
	overlay(&cfg.Jenkins.APIToken, "jenkins_api_token")
	overlay(&cfg.LogLevel, "log_level")
	if port := viper.GetInt("port"); port > 0 {
		cfg.Port = port
	}
	return cfg
}

func overlay(dst *string, key string) {
	if v := viper.GetString(key); v != "" {
		*dst = v
	}
}

// openCollection builds the server stack and returns it with the selected
// collection. Callers must run srv.ShutdownFunc.
func openCollection(ctx context.Context) (*server.Server, *index.Collection, error) {
	srv, err := server.NewWithConfig(ctx, loadConfig())
	if err != nil {
		return nil, nil, err
	}
	coll, err := srv.Handlers.Collections.Get(viper.GetString("collection"))
	if err != nil {
		srv.ShutdownFunc(ctx)
		return nil, nil, err
	}
	return srv, coll, nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ragjenkins.yaml)")

	rootCmd.PersistentFlags().StringP("collection", "c", index.DefaultCollection, "index collection to use")
	viper.BindPFlag("collection", rootCmd.PersistentFlags().Lookup("collection"))

	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}
