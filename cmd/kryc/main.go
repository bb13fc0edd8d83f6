// Command kryc compiles KRY UI source into compact KRB binary artifacts.
package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
	"github.com/urfave/cli/v2"

	"github.com/kryonlabs/kryc/compiler"
	"github.com/kryonlabs/kryc/internal/diagnostics"
)

// projectConfig mirrors a kryc.toml project-default file, loaded before
// command-line flags so flags can override it field by field.
type projectConfig struct {
	OptimizationLevel  int               `toml:"optimization_level"`
	TargetPlatform     string            `toml:"target_platform"`
	EmbedScripts       bool              `toml:"embed_scripts"`
	CompressOutput     bool              `toml:"compress_output"`
	IncludeDirectories []string          `toml:"include_directories"`
	CustomVariables    map[string]string `toml:"variables"`
	DebugMode          bool              `toml:"debug_mode"`
	GenerateDebugInfo  bool              `toml:"generate_debug_info"`
}

func loadProjectConfig(path string) (*projectConfig, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &projectConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	cfg := &projectConfig{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func platformFromString(s string) compiler.TargetPlatform {
	switch s {
	case "desktop":
		return compiler.TargetDesktop
	case "mobile":
		return compiler.TargetMobile
	case "web":
		return compiler.TargetWeb
	case "embedded":
		return compiler.TargetEmbedded
	default:
		return compiler.TargetUniversal
	}
}

func optionsFromContext(c *cli.Context, cfg *projectConfig) compiler.Options {
	opts := compiler.Options{
		OptimizationLevel:  compiler.OptimizationLevel(cfg.OptimizationLevel),
		TargetPlatform:     platformFromString(cfg.TargetPlatform),
		EmbedScripts:       cfg.EmbedScripts,
		CompressOutput:     cfg.CompressOutput,
		IncludeDirectories: cfg.IncludeDirectories,
		CustomVariables:    cfg.CustomVariables,
		DebugMode:          cfg.DebugMode,
		GenerateDebugInfo:  cfg.GenerateDebugInfo,
	}
	if c.IsSet("optimize") {
		opts.OptimizationLevel = compiler.OptimizationLevel(c.Int("optimize"))
	}
	if c.IsSet("platform") {
		opts.TargetPlatform = platformFromString(c.String("platform"))
	}
	if c.IsSet("embed-scripts") {
		opts.EmbedScripts = c.Bool("embed-scripts")
	}
	if c.IsSet("compress") {
		opts.CompressOutput = c.Bool("compress")
	}
	if c.IsSet("include") {
		opts.IncludeDirectories = append(opts.IncludeDirectories, c.StringSlice("include")...)
	}
	if c.IsSet("debug") {
		opts.DebugMode = c.Bool("debug")
		opts.GenerateDebugInfo = c.Bool("debug")
	}
	if c.IsSet("max-size") {
		opts.MaxFileSize = uint32(c.Uint("max-size"))
	}
	if len(c.StringSlice("var")) > 0 {
		if opts.CustomVariables == nil {
			opts.CustomVariables = map[string]string{}
		}
		for _, kv := range c.StringSlice("var") {
			name, val, ok := splitVarFlag(kv)
			if ok {
				opts.CustomVariables[name] = val
			}
		}
	}
	return opts
}

func splitVarFlag(kv string) (string, string, bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return "", "", false
}

var commonFlags = []cli.Flag{
	&cli.IntFlag{Name: "optimize", Aliases: []string{"O"}, Usage: "optimization level: 0=none, 1=basic, 2=aggressive"},
	&cli.StringFlag{Name: "platform", Usage: "target platform: desktop, mobile, web, embedded, universal"},
	&cli.BoolFlag{Name: "embed-scripts", Usage: "keep inline @script bodies in the output (without it they are written with empty code); scripts loaded with from are always stored as resource references"},
	&cli.BoolFlag{Name: "compress", Usage: "compress the output artifact"},
	&cli.StringSliceFlag{Name: "include", Aliases: []string{"I"}, Usage: "additional include search directory"},
	&cli.StringSliceFlag{Name: "var", Usage: "inject a custom variable, name=value, before variable resolution"},
	&cli.BoolFlag{Name: "debug", Usage: "set the debug_mode and generate_debug_info options; the compiled output is the same with or without them"},
	&cli.UintFlag{Name: "max-size", Usage: "reject output larger than this many bytes (0=unlimited)"},
	&cli.StringFlag{Name: "config", Value: "kryc.toml", Usage: "project config file"},
	&cli.BoolFlag{Name: "json-log", Usage: "emit structured JSON diagnostics to stderr alongside the human narration (which --quiet suppresses)"},
	&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "suppress human narration"},
}

func reporterFromContext(c *cli.Context) *diagnostics.Reporter {
	var human, jsonSink *os.File
	if !c.Bool("quiet") {
		human = os.Stderr
	}
	if c.Bool("json-log") {
		jsonSink = os.Stderr
	}
	return diagnostics.NewReporter(human, jsonSink)
}

func main() {
	app := &cli.App{
		Name:  "kryc",
		Usage: "compile KRY UI source into KRB binary artifacts",
		Commands: []*cli.Command{
			compileCommand(),
			analyzeCommand(),
			checkCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func compileCommand() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "compile a KRY source file into a KRB artifact",
		ArgsUsage: "<input.kry> <output.krb>",
		Flags:     commonFlags,
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 2 {
				return cli.Exit("usage: kryc compile <input.kry> <output.krb>", 2)
			}
			input, output := c.Args().Get(0), c.Args().Get(1)

			cfg, err := loadProjectConfig(c.String("config"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			opts := optionsFromContext(c, cfg)

			reporter := reporterFromContext(c)
			reporter.BeginPass("compile")
			stats, err := compiler.Compile(input, output, opts)
			reporter.EndPass(err)
			if err != nil {
				reporter.Error(err)
				return cli.Exit("", 1)
			}
			for _, w := range stats.Warnings {
				reporter.Warning(w.Pos, w.Message)
			}
			reporter.Summary(0, len(stats.Warnings))
			printStats(stats)
			return nil
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "run the compiler's diagnostic passes without writing an artifact",
		ArgsUsage: "<input.kry>",
		Flags:     commonFlags,
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return cli.Exit("usage: kryc check <input.kry>", 2)
			}
			input := c.Args().Get(0)

			cfg, err := loadProjectConfig(c.String("config"))
			if err != nil {
				return cli.Exit(err, 1)
			}
			opts := optionsFromContext(c, cfg)

			reporter := reporterFromContext(c)
			reporter.BeginPass("check")
			stats, err := compiler.Check(input, opts)
			reporter.EndPass(err)
			if err != nil {
				reporter.Error(err)
				return cli.Exit("", 1)
			}
			for _, w := range stats.Warnings {
				reporter.Warning(w.Pos, w.Message)
			}
			reporter.Summary(0, len(stats.Warnings))
			return nil
		},
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "report the header, section sizes, and flags of a compiled KRB artifact",
		ArgsUsage: "<artifact.krb>",
		Action: func(c *cli.Context) error {
			if c.Args().Len() < 1 {
				return cli.Exit("usage: kryc analyze <artifact.krb>", 2)
			}
			info, err := compiler.AnalyzeArtifact(c.Args().Get(0))
			if err != nil {
				return cli.Exit(err, 1)
			}
			printKrbInfo(info)
			return nil
		},
	}
}

func printStats(s *compiler.Stats) {
	fmt.Printf("compilation %s\n", s.CompilationID)
	fmt.Printf("  elements:   %d\n", s.ElementCount)
	fmt.Printf("  styles:     %d\n", s.StyleCount)
	fmt.Printf("  components: %d\n", s.ComponentCount)
	fmt.Printf("  variables:  %d\n", s.VariableCount)
	fmt.Printf("  scripts:    %d\n", s.ScriptCount)
	fmt.Printf("  resources:  %d\n", s.ResourceCount)
	fmt.Printf("  includes:   %d\n", s.IncludeCount)
	fmt.Printf("  input size:  %d bytes\n", s.InputSize)
	fmt.Printf("  output size: %d bytes (ratio %.3f)\n", s.OutputSize, s.CompressionRatio)
	fmt.Printf("  time:        %d ms\n", s.CompileTimeMs)
}

func printKrbInfo(info *compiler.KrbInfo) {
	fmt.Printf("KRB v%d.%d\n", info.VersionMajor, info.VersionMinor)
	fmt.Printf("  flags: %v\n", info.FlagNames)
	for name, size := range info.SectionSizes {
		fmt.Printf("  section %-16s %d bytes\n", name, size)
	}
}
