// Command rash is a small interactive shell with job control.
package main

func main() {
	Execute()
}
