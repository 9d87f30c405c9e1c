// Package config provides configuration management for assetpipe using Viper
// for loading from files, environment variables, and command-line flags.
//
// Every value has a default matching the conventional project layout
// (src/ in, dist/ out), so a project without a .assetpipe.yml builds as is.
// The loaded Config is an explicit value handed to the task graph; nothing
// outside cmd/ reads viper directly.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Paths   PathsConfig   `mapstructure:"paths" yaml:"paths" json:"paths"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output" json:"output"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server" json:"server"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch" json:"watch"`
	Styles  StylesConfig  `mapstructure:"styles" yaml:"styles" json:"styles"`
	Scripts ScriptsConfig `mapstructure:"scripts" yaml:"scripts" json:"scripts"`
	Icons   IconsConfig   `mapstructure:"icons" yaml:"icons" json:"icons"`
	Tools   ToolsConfig   `mapstructure:"tools" yaml:"tools" json:"tools"`
	Log     LogConfig     `mapstructure:"log" yaml:"log" json:"log"`

	// Root is the project directory every path is relative to.
	Root string `mapstructure:"-" yaml:"-" json:"-"`
}

// PathsConfig is the map of named Path Patterns.
type PathsConfig struct {
	HTML          string `mapstructure:"html" yaml:"html" json:"html"`
	Assets        string `mapstructure:"assets" yaml:"assets" json:"assets"`
	SCSS          string `mapstructure:"scss" yaml:"scss" json:"scss"`
	JS            string `mapstructure:"js" yaml:"js" json:"js"`
	Icons         string `mapstructure:"icons" yaml:"icons" json:"icons"`
	IconsTemplate string `mapstructure:"icons_template" yaml:"icons_template" json:"icons_template"`
	Robots        string `mapstructure:"robots" yaml:"robots" json:"robots"`
	Lint          string `mapstructure:"lint" yaml:"lint" json:"lint"`
}

// OutputConfig names the output root and the subtree each task owns.
type OutputConfig struct {
	Dir     string `mapstructure:"dir" yaml:"dir" json:"dir"`
	Assets  string `mapstructure:"assets" yaml:"assets" json:"assets"`
	Styles  string `mapstructure:"styles" yaml:"styles" json:"styles"`
	Scripts string `mapstructure:"scripts" yaml:"scripts" json:"scripts"`
	Fonts   string `mapstructure:"fonts" yaml:"fonts" json:"fonts"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host" json:"host"`
	Port           int      `mapstructure:"port" yaml:"port" json:"port"`
	Open           bool     `mapstructure:"open" yaml:"open" json:"open"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins" json:"allowed_origins"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce" json:"debounce"`
}

type StylesConfig struct {
	SourceMaps bool   `mapstructure:"source_maps" yaml:"source_maps" json:"source_maps"`
	Style      string `mapstructure:"style" yaml:"style" json:"style"`
	Minify     bool   `mapstructure:"minify" yaml:"minify" json:"minify"`
}

type ScriptsConfig struct {
	Bundle string `mapstructure:"bundle" yaml:"bundle" json:"bundle"`
	Minify bool   `mapstructure:"minify" yaml:"minify" json:"minify"`
}

type IconsConfig struct {
	FontName           string   `mapstructure:"font_name" yaml:"font_name" json:"font_name"`
	Formats            []string `mapstructure:"formats" yaml:"formats" json:"formats"`
	FontHeight         float64  `mapstructure:"font_height" yaml:"font_height" json:"font_height"`
	Normalize          bool     `mapstructure:"normalize" yaml:"normalize" json:"normalize"`
	CenterHorizontally bool     `mapstructure:"center_horizontally" yaml:"center_horizontally" json:"center_horizontally"`
	StartCodepoint     int      `mapstructure:"start_codepoint" yaml:"start_codepoint" json:"start_codepoint"`
	PrependUnicode     bool     `mapstructure:"prepend_unicode" yaml:"prepend_unicode" json:"prepend_unicode"`
	TemplateDest       string   `mapstructure:"template_dest" yaml:"template_dest" json:"template_dest"`
}

// ToolsConfig holds the command lines of external Transformation Steps. The
// first element is the executable. Autoprefixer, svg font and font converter
// arguments may contain the {in} and {out} placeholders; without them the
// tool reads stdin and writes stdout. svg_font gets the glyph files and
// layout flags appended.
type ToolsConfig struct {
	Sass           []string            `mapstructure:"sass" yaml:"sass" json:"sass"`
	Autoprefixer   []string            `mapstructure:"autoprefixer" yaml:"autoprefixer" json:"autoprefixer"`
	Stylelint      []string            `mapstructure:"stylelint" yaml:"stylelint" json:"stylelint"`
	SVGFont        []string            `mapstructure:"svg_font" yaml:"svg_font" json:"svg_font"`
	FontConverters map[string][]string `mapstructure:"font_converters" yaml:"font_converters" json:"font_converters"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("paths.html", "src/*.html")
	v.SetDefault("paths.assets", "src/assets/**/*")
	v.SetDefault("paths.scss", "src/scss/**/*.scss")
	v.SetDefault("paths.js", "src/js/**/*.js")
	v.SetDefault("paths.icons", "src/assets/svg/icons/**/*.svg")
	v.SetDefault("paths.icons_template", "src/iconfont-template/iconfont.scss")
	v.SetDefault("paths.robots", "robots.txt")
	v.SetDefault("paths.lint", "src/**/*.scss")

	v.SetDefault("output.dir", "dist")
	v.SetDefault("output.assets", "assets")
	v.SetDefault("output.styles", "style")
	v.SetDefault("output.scripts", "js")
	v.SetDefault("output.fonts", "assets/fonts/icons")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.open", true)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("watch.debounce", 300*time.Millisecond)

	v.SetDefault("styles.source_maps", true)
	v.SetDefault("styles.style", "compressed")
	v.SetDefault("styles.minify", false)

	v.SetDefault("scripts.bundle", "global.min.js")
	v.SetDefault("scripts.minify", true)

	v.SetDefault("icons.font_name", "iconsfont")
	v.SetDefault("icons.formats", []string{"ttf", "eot", "woff", "woff2"})
	v.SetDefault("icons.font_height", 1000)
	v.SetDefault("icons.normalize", true)
	v.SetDefault("icons.center_horizontally", true)
	v.SetDefault("icons.start_codepoint", 0xEA01)
	v.SetDefault("icons.prepend_unicode", false)
	v.SetDefault("icons.template_dest", "src/scss/layout")

	v.SetDefault("tools.sass", []string{"sass"})
	v.SetDefault("tools.autoprefixer", []string{"postcss", "{in}", "--use", "autoprefixer", "--map", "--output", "{out}"})
	v.SetDefault("tools.stylelint", []string{"stylelint"})
	v.SetDefault("tools.svg_font", []string{"svgicons2svgfont"})
	v.SetDefault("tools.font_converters", map[string][]string{
		"ttf":   {"svg2ttf", "{in}", "{out}"},
		"eot":   {"ttf2eot", "{in}", "{out}"},
		"woff":  {"ttf2woff", "{in}", "{out}"},
		"woff2": {"ttf2woff2"},
	})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// EnvPrefix prefixes every environment override, e.g. ASSETPIPE_SERVER_PORT.
const EnvPrefix = "ASSETPIPE"

// BindEnv enables ASSETPIPE_<SECTION>_<OPTION> environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
}

// Load reads the configuration from the global viper instance, which cmd/
// has pointed at the config file, environment and flags.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom unmarshals v into a validated Config rooted at the working
// directory.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	root, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}
	cfg.Root = root

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the default configuration rooted at dir.
func Default(dir string) *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: defaults do not decode: %v", err))
	}
	cfg.Root = dir

	return &cfg
}

// Abs resolves a project-relative path against Root.
func (c *Config) Abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.Root, filepath.FromSlash(path))
}

// OutputPath returns the absolute directory for an output subtree. An empty
// sub is the output root itself.
func (c *Config) OutputPath(sub string) string {
	return filepath.Join(c.Abs(c.Output.Dir), filepath.FromSlash(sub))
}

// Address is the host:port the dev server listens on.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
