package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/costlens/costlens/scripts/internal"
)

// Command represents a script that can be run
type Command struct {
	Name        string
	Description string
	Run         func() error
}

var commands = []Command{
	{
		Name:        "seed-rows",
		Description: "Seed synthetic billing rows through the ingestion API",
		Run:         internal.SeedBillingRows,
	},
}

func main() {
	var (
		listCommands bool
		cmdName      string
	)

	flag.BoolVar(&listCommands, "list", false, "List available commands")
	flag.StringVar(&cmdName, "cmd", "", "Command to run")
	flag.Parse()

	if listCommands {
		fmt.Println("Available commands:")
		for _, cmd := range commands {
			fmt.Printf("  %-12s %s\n", cmd.Name, cmd.Description)
		}
		return
	}

	for _, cmd := range commands {
		if cmd.Name == cmdName {
			if err := cmd.Run(); err != nil {
				log.Fatalf("Command %s failed: %v", cmd.Name, err)
			}
			return
		}
	}

	fmt.Printf("Unknown command %q, use -list to see available commands\n", cmdName)
	os.Exit(1)
}
