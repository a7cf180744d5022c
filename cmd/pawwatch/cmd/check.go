package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/pawwatch/internal/alerting"
	"github.com/good-yellow-bee/pawwatch/internal/models"
	"github.com/good-yellow-bee/pawwatch/internal/storage"
)

type checkFile struct {
	Subject    subjectRecord     `yaml:"subject"`
	History    []sampleRecord    `yaml:"history"`
	Evaluation *evaluationRecord `yaml:"evaluation"`
	Weight     *sampleRecord     `yaml:"weight"`
}

// checkResult is one candidate as printed by check.
type checkResult struct {
	Kind     models.AlertKind `json:"kind"`
	Severity models.Severity  `json:"severity"`
	Title    string           `json:"title"`
	Message  string           `json:"message"`
}

type checkOutput struct {
	Candidates []checkResult `json:"candidates"`
	RuleErrors []string      `json:"rule_errors,omitempty"`
}

var checkCmd = &cobra.Command{
	Use:   "check <samples.yaml>",
	Short: "Dry-run the alert rules over a sample file",
	Long: `Evaluate the rules against a subject, its history and a new evaluation
or weight, and print the candidate alerts. Nothing is stored or sent and
the cooldown does not apply.

File format:
  subject: {id: dog-1, name: Luna, size_class: medium, owner_id: parent-1}
  history:
    - {metric: weight, value: 20, recorded_at: 2026-03-01T09:00:00Z}
  evaluation: {energy: 5, sociability: 6, obedience: 9, anxiety: 2, origin: school}
  weight: {value: 24, origin: home}

Thresholds come from the configured thresholds file, or the built-in
defaults.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var file checkFile
	if err := readYAML(args[0], &file); err != nil {
		return err
	}
	thresholds, err := loadThresholds(cfg.Thresholds)
	if err != nil {
		return err
	}

	evaluator := alerting.NewEvaluator(thresholds, cfg.Rules, zerolog.Nop())
	out, err := dryRun(context.Background(), evaluator, file, time.Now())
	if err != nil {
		return err
	}
	if output == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	printCheckTable(cmd.OutOrStdout(), out)
	return nil
}

// dryRun evaluates the file's evaluation and weight against its history.
func dryRun(ctx context.Context, evaluator *alerting.Evaluator, file checkFile, now time.Time) (checkOutput, error) {
	subject, err := file.Subject.model()
	if err != nil {
		return checkOutput{}, err
	}
	if file.Evaluation == nil && file.Weight == nil {
		return checkOutput{}, fmt.Errorf("nothing to check: add an evaluation or a weight")
	}

	// History goes through a memory store so it is windowed and ordered
	// exactly as the service does it.
	store := storage.NewMemoryStorage()
	for _, rec := range file.History {
		s := rec.model(subject.ID)
		if s.RecordedAt.IsZero() {
			return checkOutput{}, fmt.Errorf("history %s sample without recorded_at", s.Metric)
		}
		if err := store.Samples().SaveSample(ctx, &s); err != nil {
			return checkOutput{}, err
		}
	}
	history := func(m models.Metric, limit int) (alerting.HistoryWindow, error) {
		samples, err := store.Samples().FetchRecentSamples(ctx, subject.ID, m, limit)
		if err != nil {
			return alerting.HistoryWindow{}, err
		}
		return alerting.NewHistoryWindow(samples, alerting.NewestFirst), nil
	}
	limit := evaluator.Options().HistoryLimit

	var (
		candidates []alerting.AlertEvent
		ruleErrs   []alerting.RuleError
	)
	if file.Evaluation != nil {
		ev := file.Evaluation.model(subject.ID)
		if ev.EvaluatedAt.IsZero() {
			ev.EvaluatedAt = now
		}
		windows := make(map[models.Metric]alerting.HistoryWindow, len(models.BehaviorMetrics))
		for _, m := range models.BehaviorMetrics {
			w, err := history(m, limit)
			if err != nil {
				return checkOutput{}, err
			}
			windows[m] = w
		}
		c, re := evaluator.EvaluateBehavior(ev, *subject, windows, now)
		candidates = append(candidates, c...)
		ruleErrs = append(ruleErrs, re...)
	}
	if file.Weight != nil {
		s := file.Weight.model(subject.ID)
		s.Metric = models.MetricWeight
		if s.RecordedAt.IsZero() {
			s.RecordedAt = now
		}
		w, err := history(models.MetricWeight, limit)
		if err != nil {
			return checkOutput{}, err
		}
		c, re := evaluator.EvaluateWeight(s, *subject, w, now)
		candidates = append(candidates, c...)
		ruleErrs = append(ruleErrs, re...)
	}

	out := checkOutput{Candidates: []checkResult{}}
	for _, ev := range candidates {
		msg, err := alerting.Render(ev)
		if err != nil {
			return checkOutput{}, fmt.Errorf("render %s: %w", ev.Kind(), err)
		}
		out.Candidates = append(out.Candidates, checkResult{
			Kind:     ev.Kind(),
			Severity: alerting.Severity(ev),
			Title:    msg.Title,
			Message:  msg.Body,
		})
	}
	sort.SliceStable(out.Candidates, func(i, j int) bool {
		return out.Candidates[i].Severity.Rank() > out.Candidates[j].Severity.Rank()
	})
	for _, re := range ruleErrs {
		out.RuleErrors = append(out.RuleErrors, re.Error())
	}
	return out, nil
}

func printCheckTable(w io.Writer, out checkOutput) {
	if len(out.Candidates) == 0 {
		fmt.Fprintln(w, "no alerts")
	} else {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "SEVERITY\tKIND\tTITLE")
		for _, c := range out.Candidates {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Severity, c.Kind, c.Title)
		}
		tw.Flush()
	}
	for _, e := range out.RuleErrors {
		fmt.Fprintf(w, "rule error: %s\n", e)
	}
}
