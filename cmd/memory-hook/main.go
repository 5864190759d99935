// memory-hook is the host-invoked hook executable (§6.1). It reads one
// JSON document from stdin, dispatches it through the Hook Router, and
// writes at most one JSON document to stdout, exiting 0 even on logical
// failure (§4.6, §6.6 "Router hooks: always 0").
//
// Usage:
//
//	memory-hook < event.json
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jg-phare/memoryd/pkg/memory"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := memory.LoadConfig()
	storageDir := cfg.ResolvedStorageDir()

	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "memory-hook: read stdin: %v\n", err)
		writeOutput(memory.HookOutput{})
		return 0
	}

	var in memory.HookInput
	if err := json.Unmarshal(raw, &in); err != nil {
		fmt.Fprintf(os.Stderr, "memory-hook: malformed input: %v\n", err)
		writeOutput(memory.HookOutput{})
		return 0
	}

	registry := memory.NewRegistry(storageDir, nil)
	queue := memory.NewQueue(storageDir)
	breaker := memory.NewBreaker(storageDir, cfg)
	store := memory.NewStore(storageDir, cfg)

	client := memory.NewLLMClient(cfg.ExtractionModel)
	retrieval := memory.NewRetrieval(store, cfg, nil, 0)
	validator := memory.NewValidator(client, cfg, store, nil)

	router := memory.NewRouter(cfg, breaker, registry, queue, retrieval, validator, nil)

	out := router.Handle(context.Background(), in)
	writeOutput(out)
	return 0
}

func writeOutput(out memory.HookOutput) {
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	fmt.Println(string(data))
}
