package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var knownFontFormats = map[string]bool{
	"svg":   true,
	"ttf":   true,
	"eot":   true,
	"woff":  true,
	"woff2": true,
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if err := validateServerConfig(&config.Server); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := validatePathsConfig(&config.Paths); err != nil {
		return fmt.Errorf("paths config: %w", err)
	}

	if err := validateOutputConfig(&config.Output); err != nil {
		return fmt.Errorf("output config: %w", err)
	}

	if config.Watch.Debounce <= 0 {
		return fmt.Errorf("watch config: debounce must be positive, got %s", config.Watch.Debounce)
	}

	switch config.Styles.Style {
	case "expanded", "compressed":
	default:
		return fmt.Errorf("styles config: style must be expanded or compressed, got %q", config.Styles.Style)
	}

	if config.Scripts.Bundle == "" || strings.ContainsAny(config.Scripts.Bundle, `/\`) {
		return fmt.Errorf("scripts config: bundle must be a plain file name, got %q", config.Scripts.Bundle)
	}

	if err := validateIconsConfig(&config.Icons, &config.Tools); err != nil {
		return fmt.Errorf("icons config: %w", err)
	}

	if len(config.Tools.Sass) == 0 || config.Tools.Sass[0] == "" {
		return fmt.Errorf("tools config: sass command is empty")
	}

	switch config.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log config: format must be text or json, got %q", config.Log.Format)
	}

	return nil
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// Port 0 lets the system pick one, tests rely on that
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}

	if config.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/"}
		for _, char := range dangerousChars {
			if strings.Contains(config.Host, char) {
				return fmt.Errorf("host contains dangerous character: %s", char)
			}
		}
	}

	return nil
}

func validatePathsConfig(config *PathsConfig) error {
	patterns := map[string]string{
		"html":           config.HTML,
		"assets":         config.Assets,
		"scss":           config.SCSS,
		"js":             config.JS,
		"icons":          config.Icons,
		"icons_template": config.IconsTemplate,
		"robots":         config.Robots,
		"lint":           config.Lint,
	}

	for name, pattern := range patterns {
		if err := validatePattern(pattern); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

// validatePattern checks that a Path Pattern is a well-formed relative glob.
func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("empty pattern")
	}
	if filepath.IsAbs(pattern) || strings.HasPrefix(pattern, "/") {
		return fmt.Errorf("pattern %q must be relative to the project root", pattern)
	}
	if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
		return fmt.Errorf("pattern %q is not a valid glob", pattern)
	}

	return nil
}

func validateOutputConfig(config *OutputConfig) error {
	if err := validatePath(config.Dir); err != nil {
		return fmt.Errorf("dir: %w", err)
	}
	if filepath.Clean(config.Dir) == "." {
		return fmt.Errorf("dir must not be the project root")
	}

	// Subdirectories may be empty, meaning the output root itself
	subdirs := map[string]string{
		"assets":  config.Assets,
		"styles":  config.Styles,
		"scripts": config.Scripts,
		"fonts":   config.Fonts,
	}
	for name, sub := range subdirs {
		if sub == "" {
			continue
		}
		if err := validatePath(sub); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	return nil
}

func validateIconsConfig(config *IconsConfig, tools *ToolsConfig) error {
	if config.FontName == "" {
		return fmt.Errorf("font_name is empty")
	}
	if config.FontHeight <= 0 {
		return fmt.Errorf("font_height must be positive")
	}
	if config.StartCodepoint <= 0 || config.StartCodepoint > 0x10FFFF {
		return fmt.Errorf("start_codepoint %#x is not a valid code point", config.StartCodepoint)
	}
	if err := validatePath(config.TemplateDest); err != nil {
		return fmt.Errorf("template_dest: %w", err)
	}

	if len(config.Formats) > 0 && (len(tools.SVGFont) == 0 || tools.SVGFont[0] == "") {
		return fmt.Errorf("icon fonts need tools.svg_font")
	}
	if config.StartCodepoint >= 0xD800 && config.StartCodepoint <= 0xDFFF {
		return fmt.Errorf("start_codepoint %#x is a surrogate", config.StartCodepoint)
	}

	for _, format := range config.Formats {
		if !knownFontFormats[format] {
			return fmt.Errorf("unknown font format %q", format)
		}
		if format == "svg" {
			continue
		}
		if cmd := tools.FontConverters[format]; len(cmd) == 0 || cmd[0] == "" {
			return fmt.Errorf("format %q needs tools.font_converters.%s", format, format)
		}
		// Every binary format is converted from the ttf
		if format != "ttf" {
			if cmd := tools.FontConverters["ttf"]; len(cmd) == 0 || cmd[0] == "" {
				return fmt.Errorf("format %q needs tools.font_converters.ttf", format)
			}
		}
	}

	return nil
}

// validatePath validates a relative directory path for security
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path should be relative: %s", path)
	}

	// Clean leaves ".." only as a leading element
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
