// Package main provides the nbslot CLI.
package main

func main() {
	Execute()
}
