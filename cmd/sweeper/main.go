// Sweeper - policy-driven cleanup of idle cloud resources.
// Count. Warn. Delete.
package main

import (
	_ "github.com/yairfalse/sweeper/providers/aws"
)

func main() {
	Execute()
}
