// jobmate-matching-service
//
// Job–candidate matching engine. Owns job postings and their lifecycle,
// evaluates candidates against job requirements, persists JobMatch rows and
// serves paginated match views to employers and counts to students.
//
// Exposes a REST API for the Gateway and a gRPC MatchService for internal
// callers. Publishes lifecycle events to Redis for Gateway SSE forward.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
