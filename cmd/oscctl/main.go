// Command oscctl serves, sends, records and discovers Open Sound Control traffic.
//
// Usage:
//
//	oscctl <command> [flags]
//
// Commands:
//
//	serve    Run an OSC server with logging and forwarding routes
//	send     Send one message, optionally as a timed bundle
//	dump     Print a capture file
//	browse   List OSC servers advertised over mDNS
//
// Examples:
//
//	# Listen on port 9000 and print every datagram
//	oscctl serve --listen :9000 --print
//
//	# Serve with a config file and record a capture
//	oscctl serve --config stage.yaml --capture stage.osccap
//
//	# Send a message with typed arguments
//	oscctl send 127.0.0.1:9000 /synth/freq f:440 i:1 s:"lead"
//
//	# Send it half a second in the future
//	oscctl send --at 500ms 127.0.0.1:9000 /synth/gate T
//
//	# Show only inbound datagrams of a capture
//	oscctl dump --direction in stage.osccap
package main

func main() {
	execute()
}
