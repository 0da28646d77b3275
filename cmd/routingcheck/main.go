// Command routingcheck validates a routing configuration document
// offline, the same way cmd/migrate let operators dry-run a schema
// change before pointing the real server at it.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/aras-services/aras-gateway/internal/domain"
	"github.com/aras-services/aras-gateway/internal/routing"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: routingcheck <path-to-gatewaysettings.json>")
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		log.Fatalf("failed to read %s: %v", os.Args[1], err)
	}

	var doc struct {
		GatewayRouting domain.RoutingConfig `json:"GatewayRouting"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Fatalf("failed to parse %s: %v", os.Args[1], err)
	}

	if err := routing.ValidateShape(&doc.GatewayRouting); err != nil {
		log.Fatalf("routing config shape invalid: %v", err)
	}
	if err := routing.Validate(&doc.GatewayRouting); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	fmt.Printf("routing configuration valid: %d microservice(s)\n", len(doc.GatewayRouting.Microservices))
}
