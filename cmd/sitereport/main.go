// Command sitereport analyses a single website from the terminal.
package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Harvey-AU/site-report/internal/analysis"
	"github.com/Harvey-AU/site-report/internal/api"
	"github.com/Harvey-AU/site-report/internal/collectors"
	"github.com/Harvey-AU/site-report/internal/export"
	"github.com/Harvey-AU/site-report/internal/report"
	"github.com/Harvey-AU/site-report/internal/util"
)

type options struct {
	settings collectors.Settings
	jsonOut  string
	pdfOut   string
	noColor  bool
	verbose  bool
}

func main() {
	_ = godotenv.Load(".env.local", ".env")

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{settings: collectors.DefaultSettings()}
	opts.settings.UserAgent = "site-report-cli/" + api.Version
	opts.settings.WhoisAPIKey = os.Getenv("WHOIS_API_KEY")

	rootCmd := &cobra.Command{
		Use:          "sitereport",
		Short:        "Website technical intelligence report",
		Version:      api.Version,
		SilenceUsage: true,
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze <url>",
		Short: "Collect WHOIS, tech stack, age, SEO, DNS and hosting facts for a site",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd, opts, args[0])
		},
	}

	flags := analyzeCmd.Flags()
	flags.StringVar(&opts.jsonOut, "json", "", "write the report as JSON to this path (- for stdout)")
	flags.StringVar(&opts.pdfOut, "pdf", "", "write the report as a PDF document to this path")
	flags.StringVar(&opts.settings.RemoteURL, "remote", "", "delegate collection to a site-report server at this base URL")
	flags.StringVar(&opts.settings.DNSResolver, "resolver", opts.settings.DNSResolver, "DNS resolver: direct or system")
	flags.StringVar(&opts.settings.DNSServer, "dns-server", "", "nameserver for the direct resolver (host:port)")
	flags.DurationVar(&opts.settings.FetchTimeout, "timeout", opts.settings.FetchTimeout, "timeout for page and service requests")
	flags.BoolVar(&opts.settings.TechFingerprint, "fingerprint", false, "add wappalyzer fingerprints to the tech stack")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable coloured output")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log collector activity to stderr")

	rootCmd.AddCommand(analyzeCmd)
	return rootCmd
}

func runAnalyze(cmd *cobra.Command, opts *options, rawURL string) error {
	setupLogging(cmd.ErrOrStderr(), opts.verbose)
	if opts.noColor {
		color.NoColor = true
	}

	target, err := util.NormaliseTarget(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	settings := opts.settings
	if settings.RemoteURL != "" {
		settings.Mode = collectors.ModeRemote
	}
	facetCollectors, err := collectors.Build(settings, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep := analysis.NewAggregator(facetCollectors).Analyse(ctx, target)
	doc := export.BuildDocument(rep)

	if opts.jsonOut != "-" {
		printDocument(cmd.OutOrStdout(), doc)
	}

	if opts.jsonOut != "" {
		if err := writeJSON(cmd.OutOrStdout(), opts.jsonOut, rep); err != nil {
			return err
		}
	}
	if opts.pdfOut != "" {
		if err := writePDF(opts.pdfOut, doc); err != nil {
			return err
		}
		log.Info().Str("path", opts.pdfOut).Msg("PDF document written")
	}

	if failed := analysis.FailedFacets(rep); len(failed) > 0 && opts.jsonOut != "-" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n%s %s\n", color.YellowString("Incomplete facets:"), strings.Join(failed, ", "))
	}
	return nil
}

// printDocument renders the document layout as coloured terminal text.
func printDocument(w io.Writer, doc export.Document) {
	bold := color.New(color.Bold).SprintFunc()
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	fmt.Fprintln(w, bold(doc.Title))
	for _, line := range doc.Subtitle {
		fmt.Fprintln(w, line)
	}

	for _, section := range doc.Sections {
		fmt.Fprintf(w, "\n%s\n", cyan(section.Title))
		for _, row := range section.Rows {
			label := row.Label
			if label != "" {
				label += ":"
			}
			for _, line := range row.DisplayLines() {
				if row.Highlight {
					line = red(line)
				}
				fmt.Fprintf(w, "  %-24s %s\n", label, line)
				label = ""
			}
		}
	}
}

func writeJSON(stdout io.Writer, path string, rep *report.Report) error {
	data, err := export.MarshalReport(rep)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')

	if path == "-" {
		_, err = stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	log.Info().Str("path", path).Msg("JSON report written")
	return nil
}

func writePDF(path string, doc export.Document) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	if err := export.NewPDFRenderer().Render(doc, f); err != nil {
		return fmt.Errorf("failed to render document: %w", err)
	}
	return nil
}

func setupLogging(w io.Writer, verbose bool) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
}
