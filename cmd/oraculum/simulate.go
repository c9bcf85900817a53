package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alienxp03/oraculum/internal/core"
	"github.com/alienxp03/oraculum/internal/export"
	"github.com/alienxp03/oraculum/internal/registry"
	"github.com/alienxp03/oraculum/internal/simulation"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate [product]",
	Short: "Run one simulation in-process",
	Long: `Run a single simulation against the configured backend and export
the result when it finishes.

Examples:
  oraculum simulate "Kopi Oat" --scenario focus_group --rounds 3
  oraculum simulate "Kopi Oat" --agents "Priya:Engineer:High,Tom:Barista"
  oraculum simulate "Kopi Oat" --scenario ab_messaging --option-a "Oat, not milk" --option-b "Creamy by nature"
  oraculum simulate "Kopi Oat" --plain --format csv --output results.csv`,
	Args: cobra.ExactArgs(1),
	RunE: runSimulate,
}

var (
	scenarioFlag string
	contextFlag  string
	audienceFlag string
	agentsFlag   string
	countFlag    int
	roundsFlag   int
	optionAFlag  string
	optionBFlag  string
	stageFlag    string
	imageFlag    string
	pdfFlag      string
	formatFlag   string
	outputFlag   string
	plainFlag    bool
)

func init() {
	simulateCmd.Flags().StringVarP(&scenarioFlag, "scenario", "s", core.ScenarioFocusGroup, "Scenario: "+fmt.Sprint(core.KnownScenarios))
	simulateCmd.Flags().StringVarP(&contextFlag, "context", "c", "", "Product context for the agents")
	simulateCmd.Flags().StringVar(&audienceFlag, "audience", "", "Target audience for generated personas")
	simulateCmd.Flags().StringVarP(&agentsFlag, "agents", "a", "", "Fixed agents (name[:role[:skepticism]],...)")
	simulateCmd.Flags().IntVarP(&countFlag, "count", "n", 0, "Number of personas to generate")
	simulateCmd.Flags().IntVarP(&roundsFlag, "rounds", "r", 0, "Debate rounds (focus_group)")
	simulateCmd.Flags().StringVar(&optionAFlag, "option-a", "", "First variant (creative_test, ab_messaging)")
	simulateCmd.Flags().StringVar(&optionBFlag, "option-b", "", "Second variant (creative_test, ab_messaging)")
	simulateCmd.Flags().StringVar(&stageFlag, "stage", "", "Funnel stage (cx_flow)")
	simulateCmd.Flags().StringVar(&imageFlag, "image", "", "Base64-encoded image attachment file")
	simulateCmd.Flags().StringVar(&pdfFlag, "pdf", "", "Base64-encoded PDF attachment file")
	simulateCmd.Flags().StringVarP(&formatFlag, "format", "f", string(export.FormatMarkdown), "Export format ("+export.FormatList()+")")
	simulateCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output file (default: generated name)")
	simulateCmd.Flags().BoolVar(&plainFlag, "plain", false, "Print progress lines instead of the interactive view")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	req := core.SimulationRequest{
		Scenario:       scenarioFlag,
		ProductName:    args[0],
		Context:        contextFlag,
		TargetAudience: audienceFlag,
		AgentCount:     countFlag,
		Rounds:         roundsFlag,
		OptionA:        optionAFlag,
		OptionB:        optionBFlag,
		Stage:          stageFlag,
	}
	if agentsFlag != "" {
		agents, err := core.ParseAgentSpecs(agentsFlag)
		if err != nil {
			return fmt.Errorf("invalid --agents: %w", err)
		}
		req.Agents = agents
	}
	var err error
	if req.Image, err = readAttachment(imageFlag); err != nil {
		return err
	}
	if req.PDF, err = readAttachment(pdfFlag); err != nil {
		return err
	}

	exporter, err := export.GetExporter(export.Format(formatFlag))
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

	svc := simulation.New(gw, registry.New(), appConfig.SimulationSettings(),
		simulation.WithSkills(appConfig.CreateSkills(gw)),
		simulation.WithLogger(logger),
	)

	id, err := svc.Submit(ctx, req)
	if err != nil {
		return err
	}

	var job *core.Job
	if plainFlag {
		job, err = watchPlain(ctx, svc.Jobs(), id)
	} else {
		job, err = watchInteractive(ctx, svc.Jobs(), id)
	}
	if err != nil {
		return err
	}

	if job.Status == core.StatusFailed {
		return fmt.Errorf("simulation failed: %s", job.Error)
	}
	return writeExport(exporter, job, outputFlag)
}

func readAttachment(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read attachment: %w", err)
	}
	return string(data), nil
}

func watchInteractive(ctx context.Context, jobs *registry.Registry, id string) (*core.Job, error) {
	p := tea.NewProgram(newProgressModel(jobs, id), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("progress view failed: %w", err)
	}
	m := final.(progressModel)
	if m.job == nil || !m.job.Status.IsTerminal() {
		return nil, fmt.Errorf("simulation interrupted")
	}
	return m.job, nil
}

func watchPlain(ctx context.Context, jobs *registry.Registry, id string) (*core.Job, error) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	seen := 0
	for {
		job, ok := jobs.Get(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, id)
		}
		for _, r := range job.Results[seen:] {
			fmt.Println(resultLine(r))
		}
		seen = len(job.Results)
		if job.Status.IsTerminal() {
			fmt.Printf("%s: %d results\n", job.Status, len(job.Results))
			return job, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func writeExport(exporter export.Exporter, job *core.Job, path string) error {
	if path == "" {
		path = export.GenerateFilename(job, exporter.FileExtension())
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := exporter.Export(job, f); err != nil {
		f.Close()
		return fmt.Errorf("export failed: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}

	fmt.Printf("Exported to %s\n", path)
	return nil
}
