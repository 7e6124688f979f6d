package client

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Tyrowin/linechat/internal/protocol"
)

// A Console writing to something other than a terminal emits plain text.
func TestConsolePlainOutput(t *testing.T) {
	var out bytes.Buffer
	c := NewConsole(&out)

	c.Server(protocol.Joined("Bo"))
	c.Server(protocol.Chat("Bo", "hi"))
	c.Server(protocol.PrivateFrom("Bo", "psst"))
	c.Server(protocol.ServerFullNotice)
	c.Warn("You have left the chat.")
	c.Hint("for random username")
	c.Prompt("Enter your username: ")

	want := protocol.Joined("Bo") + "\n" +
		"Bo: hi\n" +
		protocol.PrivateFrom("Bo", "psst") + "\n" +
		protocol.ServerFullNotice + "\n" +
		"You have left the chat.\n" +
		"[Hit ENTER for random username]\n" +
		"Enter your username: "
	if diff := cmp.Diff(want, out.String()); diff != "" {
		t.Errorf("console output mismatch (-want +got):\n%s", diff)
	}
}
