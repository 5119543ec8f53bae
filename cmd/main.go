package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/akamensky/argparse"
	"github.com/fatih/color"
	"github.com/zarni99/brutepedro/pkg/attack"
	"github.com/zarni99/brutepedro/pkg/check"
	"github.com/zarni99/brutepedro/pkg/config"
	"github.com/zarni99/brutepedro/pkg/credstore"
	"github.com/zarni99/brutepedro/pkg/logger"
	"github.com/zarni99/brutepedro/pkg/output"
	"github.com/zarni99/brutepedro/pkg/session"
)

const (
	appName    = "BrutePedro"
	appVersion = "1.0.0"
)

var banner = `
 ____             _       ____           _
| __ ) _ __ _   _| |_ ___|  _ \ ___  __| |_ __ ___
|  _ \| '__| | | | __/ _ \ |_) / _ \/ _' | '__/ _ \
| |_) | |  | |_| | ||  __/  __/  __/ (_| | | | (_) |
|____/|_|   \__,_|\__\___|_|   \___|\__,_|_|  \___/
`

type options struct {
	configPath   *string
	target       *string
	postURL      *string
	usernames    *string
	passwords    *string
	successFile  *string
	progressFile *string
	maxAttempts  *int
	delay        *float64
	reportFile   *string
	debug        *bool
	noColor      *bool
}

func main() {
	os.Exit(run(os.Args, color.Output))
}

func run(args []string, stdout io.Writer) int {
	parser := argparse.NewParser(strings.ToLower(appName), "html-post-form brute-force tester")

	attackCmd := parser.NewCommand("attack", "Run or resume the brute-force campaign")
	checkCmd := parser.NewCommand("check", "Send one dummy login and dump the request and response")
	initCmd := parser.NewCommand("init-config", "Write a default config file to --config")

	opts := options{
		configPath: parser.String("c", "config", &argparse.Options{
			Help: "Config file (.yaml, .yml or .json)",
		}),
		target: parser.String("t", "target", &argparse.Options{
			Help: "Login page URL",
		}),
		postURL: parser.String("", "post-url", &argparse.Options{
			Help: "Fallback login POST URL when the form has no action",
		}),
		usernames: parser.String("u", "usernames", &argparse.Options{
			Help: "Username list file",
		}),
		passwords: parser.String("p", "passwords", &argparse.Options{
			Help: "Password list file",
		}),
		successFile: parser.String("", "success-file", &argparse.Options{
			Help: "File collecting possible successes",
		}),
		progressFile: parser.String("", "progress-file", &argparse.Options{
			Help: "File holding the last attempted combo",
		}),
		maxAttempts: parser.Int("", "max-attempts", &argparse.Options{
			Help: "Attempts per session before it is renewed",
		}),
		delay: parser.Float("", "delay", &argparse.Options{
			Help:    "Seconds to wait after each login request",
			Default: -1.0,
		}),
		reportFile: parser.String("o", "output", &argparse.Options{
			Help: "Write findings to file (.json, .csv, .md or text)",
		}),
		debug: parser.Flag("", "debug", &argparse.Options{
			Help: "Enable debug output",
		}),
		noColor: parser.Flag("", "no-color", &argparse.Options{
			Help: "Disable colored output",
		}),
	}

	if err := parser.Parse(args); err != nil {
		fmt.Fprint(stdout, parser.Usage(err))
		return 2
	}

	if initCmd.Happened() {
		path := *opts.configPath
		if path == "" {
			path = "brutepedro.yaml"
		}
		cfg := config.DefaultConfig()
		if err := config.SaveConfig(&cfg, path); err != nil {
			fmt.Fprintf(stdout, "%s %v\n", color.HiRedString("ERROR:"), err)
			return 1
		}
		fmt.Fprintf(stdout, "%s default config written to %s\n", color.HiGreenString("OK:"), path)
		return 0
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stdout, "%s %v\n", color.HiRedString("ERROR:"), err)
		return 1
	}

	useColor := !cfg.Output.NoColor && !color.NoColor
	logger.InitWithWriter(stdout, cfg.Output.LogLevel, useColor)
	printBanner(stdout, useColor)

	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration: %v", err)
		return 1
	}

	manager, err := session.NewManager(*cfg, nil)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if checkCmd.Happened() {
		logger.Info("Hello world! Let's check server and response before brute-force attack.")
		if err := check.Run(ctx, *cfg, manager, stdout); err != nil {
			logger.Error("[CHECK] %v", err)
			return 1
		}
		return 0
	}

	if attackCmd.Happened() {
		return runAttack(ctx, cfg, manager, stdout, useColor)
	}

	fmt.Fprint(stdout, parser.Usage(nil))
	return 2
}

func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	if *opts.configPath != "" {
		loaded, err := config.LoadConfig(*opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		defaults := config.DefaultConfig()
		cfg = &defaults
	}

	applyOverrides(cfg, opts)
	return cfg, nil
}

func applyOverrides(cfg *config.Config, opts options) {
	if *opts.target != "" {
		cfg.Target.LoginPageURL = *opts.target
	}
	if *opts.postURL != "" {
		cfg.Target.LoginPostURL = *opts.postURL
	}
	if *opts.usernames != "" {
		cfg.Files.Usernames = *opts.usernames
	}
	if *opts.passwords != "" {
		cfg.Files.Passwords = *opts.passwords
	}
	if *opts.successFile != "" {
		cfg.Files.Success = *opts.successFile
	}
	if *opts.progressFile != "" {
		cfg.Files.Progress = *opts.progressFile
	}
	if *opts.maxAttempts > 0 {
		cfg.Session.MaxAttemptsPerSession = *opts.maxAttempts
	}
	if *opts.delay >= 0 {
		cfg.Timing.DelaySeconds = *opts.delay
	}
	if *opts.reportFile != "" {
		cfg.Output.ReportFile = *opts.reportFile
	}
	if *opts.debug {
		cfg.Output.LogLevel = "debug"
	}
	if *opts.noColor {
		cfg.Output.NoColor = true
	}
}

func runAttack(ctx context.Context, cfg *config.Config, manager *session.Manager, stdout io.Writer, useColor bool) int {
	store := &credstore.Store{
		UsernamesPath: cfg.Files.Usernames,
		PasswordsPath: cfg.Files.Passwords,
		SuccessPath:   cfg.Files.Success,
		ProgressPath:  cfg.Files.Progress,
	}
	console := output.NewConsole(stdout, useColor)

	res, err := attack.New(*cfg, manager, store, console).Run(ctx)
	console.Break()

	started := res.State == attack.StateCompleted || res.State == attack.StateAborted
	switch {
	case err == nil:
		logger.Info("Brute-force attack completed.")
	case !started:
		if errors.Is(err, attack.ErrNoCandidates) {
			logger.Error("Username or password files are empty.")
		} else {
			logger.Error("%v", err)
		}
		return 1
	case errors.Is(err, attack.ErrInterrupted):
		logger.Warn("Interrupted by user. Saving progress and exiting.")
	default:
		logger.Error("An unexpected error occurred: %v. Saving progress and exiting.", err)
	}

	if res.State == attack.StateAborted && res.LastAttempted != "" {
		logger.Info("Progress saved in %s.", cfg.Files.Progress)
	}
	fmt.Fprintln(stdout, output.Summary(res.Known.Len(), res.PossibleSuccess, cfg.Files.Success, useColor))

	if cfg.Output.ReportFile != "" {
		var findings []output.Finding
		for _, combo := range res.Known.Sorted() {
			findings = append(findings, output.NewCredentialFinding(cfg.Target.LoginPageURL, combo))
		}
		if err := output.SaveFindings(findings, cfg.Output.ReportFile); err != nil {
			logger.Error("Failed to save report: %v", err)
		} else {
			logger.Info("Report saved to %s", cfg.Output.ReportFile)
		}
	}

	if err != nil {
		return 1
	}
	return 0
}

func printBanner(w io.Writer, useColor bool) {
	paint := func(c *color.Color, s string) string {
		if !useColor {
			return s
		}
		c.EnableColor()
		return c.Sprint(s)
	}

	for _, line := range strings.Split(banner, "\n") {
		if line != "" {
			fmt.Fprintln(w, paint(color.New(color.FgHiCyan), line))
		}
	}
	fmt.Fprintf(w, "%s %s\n\n", paint(color.New(color.FgHiMagenta), appName), paint(color.New(color.FgHiYellow), "v"+appVersion))
}
