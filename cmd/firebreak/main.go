// firebreak — policy firewall for disaster-response agents.
// Every dispatch a mission produces is evaluated against a policy before
// anything touches disk; cleared artifacts are written by scoped
// sub-agents and every evaluation lands in a hash-chained audit trail.
package main

import "github.com/relieflabs/firebreak/internal/cli"

func main() {
	cli.Execute()
}
