// Chatwire is a multi-user TCP chat relay with file and image transfer.
//
// Usage:
//
//	# Start the relay
//	chatwire serve
//
//	# Register a user against the credential database
//	chatwire register --username alice --password secret
//
//	# Join the chat from a terminal
//	chatwire chat --username alice --password secret
package main

func main() {
	Execute()
}
