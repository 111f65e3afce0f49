// Parses flags and configures logging for the kiln CLI.
//
// The CLI exposes two commands: 'kiln build', which fetches a repository
// and drives the build pipeline, and 'kiln version'. Global flags control
// log verbosity and override build-time defaults set via linker flags.
// After parsing, the global logger is reconfigured to reflect the final
// level before the selected command runs.
package cli
