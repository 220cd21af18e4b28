// Command ldcore is the CLI entry point: a cobra root command binding
// spec.md §6's flag surface (plus SPEC_FULL.md's ambient --config/
// --verbose/--trace/--emit-link-report) onto a config.Options, the way
// Manu343726-cucaracha's root command layers cobra over viper for
// config-file precedence (flag > config file > default).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xyproto/ldcore/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := config.Default()
	var configFile string

	cmd := &cobra.Command{
		Use:   "ldcore [flags] objfile...",
		Short: "a multi-architecture ELF linker core",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Inputs = args
			bindConfigFile(cmd, configFile, opts)

			if errs := opts.Validate(); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintln(os.Stderr, "ldcore: "+e)
				}
				return fmt.Errorf("invalid flag combination")
			}

			code := Run(opts)
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "load default flag values from a config file (yaml/toml/ini)")
	flags.BoolVar(&opts.Shared, "shared", opts.Shared, "build a shared object")
	flags.BoolVar(&opts.PIE, "pie", opts.PIE, "build a position-independent executable")
	flags.BoolVar(&opts.Static, "static", opts.Static, "build a fully static executable")
	flags.BoolVarP(&opts.Relocatable, "relocatable", "r", opts.Relocatable, "produce relocatable output instead of linking to an executable/shared object")
	flags.BoolVar(&opts.GCSections, "gc-sections", opts.GCSections, "discard unreferenced sections")
	flags.BoolVar(&opts.PrintGCSections, "print-gc-sections", opts.PrintGCSections, "list sections discarded by --gc-sections")
	flags.BoolVar(&opts.ZNow, "now", opts.ZNow, "equivalent to -z now")
	flags.BoolVar(&opts.ZRelro, "relro", opts.ZRelro, "enable PT_GNU_RELRO (default on)")
	flags.StringVar(&opts.BuildID, "build-id", opts.BuildID, "generate a build ID note: none, md5, sha1, uuid, or 0x<hex>")
	flags.StringVarP(&opts.OutputPath, "output", "o", "a.out", "output file path")
	flags.StringVar(&opts.Entry, "entry", opts.Entry, "entry point symbol name")
	flags.StringVar(&opts.SOName, "soname", opts.SOName, "DT_SONAME for a shared object")
	flags.StringVar(&opts.VersionScript, "version-script", opts.VersionScript, "apply a version script")
	flags.StringArrayVar(&opts.Wrap, "wrap", nil, "wrap symbol (--wrap=foo rewrites foo/__wrap_foo/__real_foo)")
	flags.StringArrayVar(&opts.LibPaths, "library-path", nil, "add a library search path")
	flags.StringArrayVar(&opts.ExcludeLibs, "exclude-libs", nil, "hide archive-member symbols from the dynamic export set")
	flags.BoolVar(&opts.ExportDynamic, "export-dynamic", opts.ExportDynamic, "export all global symbols to the dynamic symbol table")
	flags.BoolVar(&opts.FatalWarnings, "fatal-warnings", opts.FatalWarnings, "treat warnings as fatal")
	flags.BoolVar(&opts.Verbose, "verbose", opts.Verbose, "log stage progress")
	flags.BoolVar(&opts.Trace, "trace", opts.Trace, "log at debug verbosity")
	flags.StringVar(&opts.EmitLinkReport, "emit-link-report", "", "write a yaml stage-statistics report to this path")

	return cmd
}

// bindConfigFile layers viper's config-file defaults under already-parsed
// flags: any flag explicitly set on the command line wins, otherwise a
// config-file value fills the Options field it names, matching cucaracha's
// "flag > config file > default" precedence.
func bindConfigFile(cmd *cobra.Command, path string, opts *config.Options) {
	if path == "" {
		return
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "ldcore: warning: could not read config file %s: %v\n", path, err)
		return
	}
	if !cmd.Flags().Changed("shared") && v.IsSet("shared") {
		opts.Shared = v.GetBool("shared")
	}
	if !cmd.Flags().Changed("pie") && v.IsSet("pie") {
		opts.PIE = v.GetBool("pie")
	}
	if !cmd.Flags().Changed("output") && v.IsSet("output") {
		opts.OutputPath = v.GetString("output")
	}
	if !cmd.Flags().Changed("entry") && v.IsSet("entry") {
		opts.Entry = v.GetString("entry")
	}
	if !cmd.Flags().Changed("gc-sections") && v.IsSet("gc_sections") {
		opts.GCSections = v.GetBool("gc_sections")
	}
}
