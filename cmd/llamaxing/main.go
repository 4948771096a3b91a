// Llamaxing is a multi-tenant reverse-proxy gateway for LLM HTTP APIs,
// unifying OpenAI, Azure OpenAI, and Ollama deployments behind a single
// OpenAI-compatible surface.
package main

import (
	"flag"
	"fmt"
	"os"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "configs/llamaxing.yaml", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("llamaxing", version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
