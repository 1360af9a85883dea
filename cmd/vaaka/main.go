// Vaaka - Load Balancer Fleet Auditor
// Discover. Audit. Score.
package main

func main() {
	Execute()
}
