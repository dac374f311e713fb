// Package main implements the hookcatch CLI.
package main

func main() {
	Execute()
}
