package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// addServerFlags adds the dev server flags. bindRootFlags maps them onto
// the server section of the configuration.
func addServerFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.IntP("port", "p", 3000, "Port to serve on")
	flags.String("host", "localhost", "Host to bind to")
	flags.Bool("open", true, "Open the browser when the server starts")
}

// bindFlags binds each named flag to a configuration key.
func bindFlags(flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = viper.BindPFlag(key, f)
		}
	}
}

// formatFlag is an output format flag restricted to a fixed set of values.
type formatFlag struct {
	value   string
	allowed []string
}

func newFormatFlag(def string, allowed ...string) *formatFlag {
	return &formatFlag{value: def, allowed: allowed}
}

func (f *formatFlag) String() string { return f.value }

func (f *formatFlag) Set(v string) error {
	for _, a := range f.allowed {
		if v == a {
			f.value = v
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (supported: %s)", v, strings.Join(f.allowed, ", "))
}

func (f *formatFlag) Type() string { return "format" }

var _ pflag.Value = (*formatFlag)(nil)

func addFormatFlag(cmd *cobra.Command, f *formatFlag) {
	cmd.Flags().VarP(f, "format", "f", "Output format ("+strings.Join(f.allowed, ", ")+")")
}

// writeStructured encodes v as json or yaml.
func writeStructured(w io.Writer, format string, v interface{}) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	return fmt.Errorf("unsupported format: %s", format)
}
