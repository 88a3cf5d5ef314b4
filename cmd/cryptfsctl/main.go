// Command cryptfsctl is the operator CLI entrypoint for the encrypted
// userspace filesystem engine. The actual command tree lives in
// github.com/cryptofs/cryptfs/cmd so it can be tested independently of
// the binary's main package.
package main

import "github.com/cryptofs/cryptfs/cmd"

func main() {
	cmd.Execute()
}
