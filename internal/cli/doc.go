// Package cli implements the zerocache command line.
//
// Configuration merges, from lowest to highest precedence, built-in
// defaults, the file named by --config, ZEROCACHE_* environment variables
// and command-line flags.
package cli
