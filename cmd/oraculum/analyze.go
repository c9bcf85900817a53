package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/export"
	"github.com/alienxp03/oraculum/internal/registry"
	"github.com/alienxp03/oraculum/internal/simulation"
)

var analyzeOutput string

var analyzeFileCmd = &cobra.Command{
	Use:   "analyze-file [export.json]",
	Short: "Write an analyst report for an exported job",
	Long: `Read a job previously exported with --format json and ask the backend
for an analyst report over its results.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		job, err := readJobExport(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		gw, err := appConfig.OpenGateway(ctx, logger)
		if err != nil {
			return err
		}
		defer gw.Close()

		svc := simulation.New(gw, registry.New(), appConfig.SimulationSettings(), simulation.WithLogger(logger))
		report, err := svc.AnalyzeJob(ctx, job)
		if err != nil {
			return err
		}

		if analyzeOutput == "" {
			fmt.Println(report)
			return nil
		}
		if err := os.WriteFile(analyzeOutput, []byte(report+"\n"), 0644); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
		fmt.Printf("Report written to %s\n", analyzeOutput)
		return nil
	},
}

func init() {
	analyzeFileCmd.Flags().StringVarP(&analyzeOutput, "output", "o", "", "Write the report to a file instead of stdout")
}

func readJobExport(path string) (*core.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	var exp export.ExportData
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("failed to parse export: %w", err)
	}
	if exp.Job == nil {
		return nil, fmt.Errorf("%s is not a job export", path)
	}
	return exp.Job, nil
}
