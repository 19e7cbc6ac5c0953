package main

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/davidgodzsak/timelimitd/internal/classifier"
	"github.com/davidgodzsak/timelimitd/internal/config"
	"github.com/davidgodzsak/timelimitd/internal/policy"
	"github.com/davidgodzsak/timelimitd/internal/storage"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	checkDate string
)

var checkCmd = &cobra.Command{
	Use:   "check [flags] URL",
	Short: "Check the limit decision for a URL",
	Long: `Check how a URL classifies against the stored site rules and whether the
recorded usage for a given day would block it.`,
	Example: `  timelimitd check https://www.youtube.com/watch
  timelimitd --config config.yaml check --date 2026-08-20 https://old.reddit.com/r/all`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkDate, "date", "", "Ledger date to evaluate against (YYYY-MM-DD) - defaults to today")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	rawURL := args[0]

	// Parse URL
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %s", rawURL)
	}

	// Parse date (if provided)
	checkTime := time.Now()
	if checkDate != "" {
		checkTime, err = time.ParseInLocation(storage.DateKeyFormat, checkDate, time.Local)
		if err != nil {
			return fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", checkDate, err)
		}
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for check mode
	logger := zerolog.New(os.Stderr).Level(zerolog.ErrorLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Classify the URL against stored rules
	sites, err := classifier.New(store.Rules(), cfg.Classifier.CacheSize, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize site classifier: %w", err)
	}
	if err := sites.ReloadRules(ctx); err != nil {
		return fmt.Errorf("failed to load site rules: %w", err)
	}

	result := sites.Classify(rawURL)
	if !result.IsMatch {
		printNoMatchResult(parsedURL)
		return nil
	}

	// Evaluate the ledger for the requested day
	evaluator := policy.NewEvaluator(store.Rules(), store.Usage(), &fixedClock{now: checkTime}, logger)
	decision := evaluator.Evaluate(ctx, result.SiteID)

	rule, err := store.Rules().Get(ctx, result.SiteID)
	if err != nil {
		return fmt.Errorf("failed to load rule %s: %w", result.SiteID, err)
	}

	dateKey := storage.DateKey(checkTime)
	entry, err := store.Usage().GetDailyUsage(ctx, dateKey, result.SiteID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to load usage for %s: %w", dateKey, err)
		}
		entry = &storage.UsageEntry{Date: dateKey, SiteID: result.SiteID}
	}

	printCheckResult(parsedURL, rule, entry, dateKey, decision)

	return nil
}

// printNoMatchResult prints the verdict for a URL no rule matches
func printNoMatchResult(parsedURL *url.URL) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("SITE LIMIT CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("URL:        %s\n", parsedURL.String())
	fmt.Printf("Host:       %s\n", parsedURL.Hostname())
	fmt.Println()

	cyan.Print("Decision:   ")
	green.Println("NOT MONITORED")
	fmt.Println("            → No enabled rule matches this URL")
	fmt.Println("            → Time on this site is not tracked")
	fmt.Println("            → Navigation will never be redirected")

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

// printCheckResult prints the decision for a monitored URL with colors
func printCheckResult(parsedURL *url.URL, rule *storage.SiteRule, entry *storage.UsageEntry, dateKey string, decision policy.Decision) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("SITE LIMIT CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("URL:        %s\n", parsedURL.String())
	fmt.Printf("Host:       %s\n", parsedURL.Hostname())
	fmt.Printf("Rule:       %s (pattern %q)\n", rule.ID, rule.Pattern)
	fmt.Printf("Date:       %s\n", dateKey)
	fmt.Printf("Time spent: %s%s\n", (time.Duration(entry.TimeSpentSeconds) * time.Second).String(), formatTimeLimit(rule))
	fmt.Printf("Opens:      %d%s\n", entry.Opens, formatOpenLimit(rule))
	fmt.Println()

	cyan.Print("Decision:   ")
	if decision.Blocked {
		red.Println("BLOCK")
		fmt.Println("            → Navigation will be redirected to the blocked page")
		if decision.LimitType != "" {
			fmt.Printf("Limit type: %s\n", decision.LimitType)
		}
		if decision.Reason != "" {
			fmt.Printf("Reason:     %s\n", decision.Reason)
		}
	} else {
		green.Println("ALLOW")
		fmt.Println("            → Daily ceilings not reached, navigation allowed")
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

func formatTimeLimit(rule *storage.SiteRule) string {
	if !rule.HasTimeLimit() {
		return " (no time limit)"
	}
	return fmt.Sprintf(" of %s", (time.Duration(rule.DailyTimeLimitSeconds) * time.Second).String())
}

func formatOpenLimit(rule *storage.SiteRule) string {
	if !rule.HasOpenLimit() {
		return " (no open limit)"
	}
	return fmt.Sprintf(" of %d", rule.DailyOpenLimit)
}

// fixedClock implements policy.Clock for checking against a specific day
type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}
