// Package cmd provides the command-line interface for assetpipe.
//
// # Available Commands
//
//   - (none): build every task, then serve dist/ and rebuild on change
//   - run: run named tasks once, in parallel
//   - build: run the build group once without watching
//   - tasks: list tasks, their aliases and patterns
//   - config show: print the resolved configuration
//   - version: print build information
//
// # Command Examples
//
//	// Build, serve and watch
//	assetpipe
//
//	// Regenerate the icon font only
//	assetpipe run icons
//
//	// Tasks by their build file names
//	assetpipe run copyAss robotsTask
//
//	// One-off build for CI
//	assetpipe build --log-format json
//
// # Configuration
//
// Settings come from, in order of precedence: command-line flags,
// ASSETPIPE_<SECTION>_<OPTION> environment variables, the config file, and
// built-in defaults. The config file is --config, else ASSETPIPE_CONFIG_FILE,
// else .assetpipe.yml in the working directory. A missing file is not an
// error.
package cmd
