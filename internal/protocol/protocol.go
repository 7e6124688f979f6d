// Package protocol holds the line protocol shared by the chat server and client.
//
// Every message is a single newline-terminated UTF-8 line. The first line a
// client sends after connecting is its display name; everything after that is
// either a command, the quit sentinel, or plain chat text.
package protocol

import (
	"fmt"
	"strings"
)

const (
	// DefaultPort is used when neither the config file nor the command line names one.
	DefaultPort = 65534
	// DefaultHost is the address the client offers when the user just hits enter.
	DefaultHost = "127.0.0.1"

	// QuitSentinel ends a client's session, and on the operator console it
	// triggers server shutdown.
	QuitSentinel = `\q`

	CommandPrivate = "/pm"
	CommandUsers   = "/users"
	CommandHelp    = "/help"
)

// Prefixes that tag server-generated lines.
const (
	SystemPrefix = "[CHAT]: "
	ErrorPrefix  = "[ERROR] "
	SelfPrefix   = "Me: "
)

// Notices the server sends verbatim.
const (
	ServerFullNotice  = "Server is full. Please try again later."
	ShutdownNotice    = SystemPrefix + "Server is shutting down. Please disconnect."
	InvalidNameNotice = "Invalid username."
	RateLimitedNotice = ErrorPrefix + "You are sending messages too quickly."
	MalformedPMNotice = ErrorPrefix + "Invalid private message format. (Use '/pm username message')"
)

const nameTakenFormat = "Username %s is already taken."

// HelpText is the reply to /help, one line per entry.
var HelpText = []string{
	"Available Commands:",
	CommandUsers + " - List all connected users",
	CommandPrivate + " username message - Send a private message to a specific user",
	CommandHelp + " - Display this help message",
	QuitSentinel + " - Quit the chat",
}

// Joined announces a newcomer to everyone else.
func Joined(name string) string { return SystemPrefix + name + " has joined the chat." }
// Left announces a departure to those who remain.
func Left(name string) string { return SystemPrefix + name + " has left the chat." }
// Welcome greets a client once its name is accepted.
func Welcome(name string) string { return SystemPrefix + "Welcome to the chat, " + name + "!" }
// NameTaken rejects a handshake whose name is already in use.
func NameTaken(name string) string { return fmt.Sprintf(nameTakenFormat, name) }

// ActiveUsers formats the reply to /users.
func ActiveUsers(names []string) string {
	return SystemPrefix + "Active users: " + strings.Join(names, ", ")
}

// Chat is a broadcast line as seen by everyone except the author.
func Chat(from, text string) string { return from + ": " + text }

// SelfEcho is a broadcast line as seen by its author.
func SelfEcho(text string) string { return SelfPrefix + text }

// PrivateFrom is a private message as seen by its recipient.
func PrivateFrom(sender, text string) string {
	return "[Private Message from " + sender + "] " + text
}

// PrivateTo is the sender's confirmation of a private message.
func PrivateTo(recipient, text string) string {
	return "[Private Message to " + recipient + "] " + text
}

// RecipientNotFound answers a private message to an unknown name.
func RecipientNotFound(name string) string {
	return ErrorPrefix + "User " + name + " not found."
}

// IsTerminal reports whether line is a notice after which the server closes the
// connection for good, so reconnecting would be pointless.
func IsTerminal(line string) bool {
	if line == ServerFullNotice || line == InvalidNameNotice {
		return true
	}
	var name string
	n, _ := fmt.Sscanf(line, nameTakenFormat, &name)
	return n == 1 && line == NameTaken(name)
}

// IsCommand reports whether a user-typed line should be sent as-is rather than
// decorated as chat text.
func IsCommand(line string) bool {
	return strings.HasPrefix(line, "/") || line == QuitSentinel
}
