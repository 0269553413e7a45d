// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/condarepo/cmd/condarepo/cmd"
)

func main() {
	cmd.Execute()
}
