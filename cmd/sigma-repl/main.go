// Command sigma-repl is an interactive client for the Sigma tool
// dispatcher. It dispatches tools directly, without an MCP transport in
// between, which makes it handy for trying out credentials and tool
// arguments.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/dgdocker/sigma-mcp-server/pkg/config"
	"github.com/dgdocker/sigma-mcp-server/pkg/dispatch"
	"github.com/dgdocker/sigma-mcp-server/pkg/sigma"
)

func main() {
	cfg, err := config.Load(os.Getenv("SIGMA_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	client := sigma.NewClient(cfg.Credentials())
	dispatcher, err := dispatch.NewDispatcher(client)
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}

	rl, err := readline.New("sigma> ")
	if err != nil {
		log.Fatalf("Failed to initialize readline: %v", err)
	}
	defer rl.Close()

	fmt.Println("Sigma Computing tool REPL")
	fmt.Println("Usage: <tool_name> [json arguments] | tools | exit")

	for {
		line, err := rl.Readline()
		if err == readline.ErrInterrupt || err == io.EOF {
			return
		}
		if err != nil {
			log.Fatalf("Read error: %v", err)
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return
		case line == "tools":
			for _, name := range dispatcher.Registry().Names() {
				spec, _ := dispatcher.Registry().Lookup(name)
				fmt.Printf("  %-40s %s\n", name, spec.Description)
			}
			continue
		}

		name, rawArgs, _ := strings.Cut(line, " ")
		args := map[string]any{}
		if rawArgs = strings.TrimSpace(rawArgs); rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				fmt.Printf("Invalid JSON arguments: %v\n", err)
				continue
			}
		}

		printResult(dispatcher.Dispatch(context.Background(), name, args))
	}
}

func printResult(res dispatch.Result) {
	switch res.Status {
	case dispatch.StatusFailure:
		fmt.Printf("FAILED [%s] %s\n", res.Err.Kind, res.Err.Message)
		if res.Err.Body != "" {
			fmt.Printf("  upstream body: %s\n", res.Err.Body)
		}
	case dispatch.StatusPending:
		fmt.Printf("PENDING queryId=%s (export still processing)\n", res.QueryID)
	default:
		out, err := json.MarshalIndent(res.Payload, "", "  ")
		if err != nil {
			fmt.Printf("Failed to render payload: %v\n", err)
			return
		}
		fmt.Println(string(out))
		if res.NextPage != "" {
			fmt.Printf("nextPage: %s\n", res.NextPage)
		}
	}
}
