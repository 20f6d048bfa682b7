// Command livesync-fanout runs the realtime fanout hub and offers helpers to
// publish catalog events and mint development tokens.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
