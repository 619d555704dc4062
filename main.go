// Command phishguard classifies URLs as safe or phishing, either as an HTTP
// service or from the command line.
package main

func main() {
	Execute()
}
