package main

import (
	"github.com/alecthomas/kong"
)

// Cli mirrors the teacher's top-level subcommand struct (Proxy/Signal/
// Certificate in cli.go), swapped for this engine's own commands.
type Cli struct {
	Call   CliCall   `cmd:"" default:"withargs" name:"call" help:"place an outbound call over a signalling websocket"`
	Answer CliAnswer `cmd:"" name:"answer" help:"wait for and answer an inbound call"`
	Serve  CliServe  `cmd:"" name:"serve" help:"run a two-party signalling relay server"`
}

func newCLI() (*Cli, *kong.Context) {
	c := &Cli{}
	ctx := kong.Parse(c)
	return c, ctx
}
