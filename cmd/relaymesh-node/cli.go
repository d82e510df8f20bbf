package main

import "flag"

// Options holds CLI options for the node.
type Options struct {
	ConfigPath string
	NodeID     string
	LogLevel   string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("relaymesh-node", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.StringVar(&opts.NodeID, "node-id", "", "Override node_id from the config")
	fs.StringVar(&opts.LogLevel, "log-level", "", "Override log.level from the config")
	_ = fs.Parse(args)
	return opts
}
