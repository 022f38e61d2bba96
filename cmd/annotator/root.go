package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands,
// mirroring the teacher planner's rootCmd/Execute/init shape.
var rootCmd = &cobra.Command{
	Use:   "annotator",
	Short: "Clinical-note annotation pipeline orchestrator",
	Long: `annotator runs the job and annotation engine that sits between CSV
intake and exported, coded CSV: per-note LLM annotation fan-out, session
validation, row-linking, quality-check, and export.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; none is read when unset)")
	rootCmd.PersistentFlags().String("port", "8080", "HTTP server port")
	rootCmd.PersistentFlags().String("data-dir", "./data", "data directory for sessions, jobs, and caches")
	rootCmd.PersistentFlags().String("prompts-dir", "./prompts", "prompt template directory (one subdir per center)")
	rootCmd.PersistentFlags().String("fewshot-path", "./data/fewshot.json", "few-shot example store path")
	rootCmd.PersistentFlags().String("sessions-dir", "./data/sessions", "session store directory")
	rootCmd.PersistentFlags().String("dictionary-csv", "./data/diagnosis-codes-list.csv", "ICD-O-3 dictionary CSV path")
	rootCmd.PersistentFlags().String("status-db", "./data/pipeline_status.db", "job status/log SQLite database path")
	rootCmd.PersistentFlags().String("results-db", "./data/pipeline_results.db", "job results SQLite database path")

	viper.BindPFlag("port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("prompts-dir", rootCmd.PersistentFlags().Lookup("prompts-dir"))
	viper.BindPFlag("fewshot-path", rootCmd.PersistentFlags().Lookup("fewshot-path"))
	viper.BindPFlag("sessions-dir", rootCmd.PersistentFlags().Lookup("sessions-dir"))
	viper.BindPFlag("dictionary-csv", rootCmd.PersistentFlags().Lookup("dictionary-csv"))
	viper.BindPFlag("status-db", rootCmd.PersistentFlags().Lookup("status-db"))
	viper.BindPFlag("results-db", rootCmd.PersistentFlags().Lookup("results-db"))

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runStageCmd)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		_ = viper.ReadInConfig()
	}
}
