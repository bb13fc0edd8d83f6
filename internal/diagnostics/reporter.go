// Package diagnostics formats compiler pass banners and error/warning
// output for kryc's drivers, replacing the teacher's bare log.Printf calls
// (waozixyz-kryc/main.go's "Pass N: ..." narration) with the pterm-based
// display pattern ComedicChimera-chai's src/logging/display.go uses, plus a
// parallel structured JSON sink for machine-readable CI logs.
package diagnostics

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
)

var (
	successColor = pterm.FgLightGreen
	successBG    = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	warnColor    = pterm.FgYellow
	warnBG       = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	errorColor   = pterm.FgRed
	errorBG      = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
)

// Reporter narrates a compilation pass-by-pass to a human (via pterm
// spinners/colored tags, mirroring the teacher's "Pass N: <verb>..." phase
// banners) while simultaneously emitting one structured zerolog event per
// pass and per diagnostic, for callers that pipe kryc's output into a log
// aggregator instead of a terminal.
type Reporter struct {
	log     zerolog.Logger
	spinner *pterm.SpinnerPrinter
	phase   string
	started time.Time
	quiet   bool
}

// NewReporter creates a Reporter writing human narration to human (nil
// disables it) and structured JSON events to jsonSink (nil disables it).
func NewReporter(human io.Writer, jsonSink io.Writer) *Reporter {
	r := &Reporter{quiet: human == nil}
	if !r.quiet {
		pterm.SetDefaultOutput(human)
	}
	if jsonSink == nil {
		jsonSink = io.Discard
	}
	r.log = zerolog.New(jsonSink).With().Timestamp().Logger()
	return r
}

// BeginPass starts a new phase banner (spec's pass names: Preprocess,
// Parse, Resolve Variables, Resolve Styles, Resolve Components, Analyze,
// Optimize, Calculate Sizes, Generate), mirroring the teacher's
// "Pass N: <verb>ing..." log lines with a live spinner instead of a static
// log.Println.
func (r *Reporter) BeginPass(name string) {
	r.phase = name
	r.started = time.Now()
	r.log.Info().Str("pass", name).Msg("pass started")
	if r.quiet {
		return
	}
	r.spinner = pterm.DefaultSpinner.WithStyle(pterm.NewStyle(successColor))
	r.spinner.SuccessPrinter = &pterm.PrefixPrinter{
		MessageStyle: pterm.NewStyle(pterm.FgDefault),
		Prefix:       pterm.Prefix{Style: successBG, Text: "done"},
	}
	r.spinner.FailPrinter = &pterm.PrefixPrinter{
		MessageStyle: pterm.NewStyle(pterm.FgDefault),
		Prefix:       pterm.Prefix{Style: errorBG, Text: "fail"},
	}
	r.spinner.Start(name + "...")
}

// EndPass closes the current phase banner, reporting success or failure.
func (r *Reporter) EndPass(err error) {
	elapsed := time.Since(r.started)
	ev := r.log.Info()
	if err != nil {
		ev = r.log.Error().Err(err)
	}
	ev.Str("pass", r.phase).Dur("elapsed", elapsed).Msg("pass finished")

	if r.quiet || r.spinner == nil {
		return
	}
	if err != nil {
		r.spinner.Fail(r.phase)
	} else {
		r.spinner.Success(r.phase, fmt.Sprintf("(%.3fs)", elapsed.Seconds()))
	}
	r.spinner = nil
}

// Error prints a fatal compiler error (spec 7's Pos-carrying error types)
// to the human sink and logs it structured.
func (r *Reporter) Error(err error) {
	r.log.Error().Err(err).Msg("compile error")
	if r.quiet {
		return
	}
	errorBG.Print(" error ")
	errorColor.Println(" " + err.Error())
}

// Warning prints a non-fatal diagnostic (spec's Warning type).
func (r *Reporter) Warning(pos fmt.Stringer, msg string) {
	r.log.Warn().Str("pos", pos.String()).Str("message", msg).Msg("warning")
	if r.quiet {
		return
	}
	warnBG.Print(" warn ")
	warnColor.Println(" " + pos.String() + ": " + msg)
}

// Summary prints the final "N errors, M warnings" line, mirroring
// ComedicChimera-chai's displayCompilationFinished.
func (r *Reporter) Summary(errors, warnings int) {
	r.log.Info().Int("errors", errors).Int("warnings", warnings).Msg("compilation finished")
	if r.quiet {
		return
	}
	if errors == 0 {
		successColor.Print("done ")
	} else {
		errorColor.Print("failed ")
	}
	fmt.Print("(")
	if errors == 0 {
		successColor.Print(0)
	} else {
		errorColor.Print(errors)
	}
	fmt.Print(" errors, ")
	if warnings == 0 {
		successColor.Print(0)
	} else {
		warnColor.Print(warnings)
	}
	fmt.Println(" warnings)")
}

// Default is a Reporter writing human output to stderr and no structured
// sink, the shape most CLI invocations want.
func Default() *Reporter {
	return NewReporter(os.Stderr, nil)
}
