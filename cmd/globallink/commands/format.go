package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const rule = "═══════════════════════════════════════════════════════════"

// printHeader prints a titled banner so every command looks the same
func printHeader(title string) {
	fmt.Println()
	fmt.Println(rule)
	fmt.Printf("  %s\n", title)
	fmt.Println(strings.Repeat("─", 59))
}

// printJSON writes v indented to stdout
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func printDone(format string, args ...interface{}) {
	fmt.Println()
	fmt.Printf("✅ "+format+"\n", args...)
}
