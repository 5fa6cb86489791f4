// chatrelay CLI - command line participant for a chatrelay server
package main

import "github.com/eldtechnologies/chatrelay/clients/go/internal/cmd"

func main() {
	cmd.Execute()
}
